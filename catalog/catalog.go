// Package catalog describes what the store sells: products, each with an
// ordered list of purchasable options and their prices.
package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Option is one purchasable variant of a product, e.g. "1 month" for $5.
type Option struct {
	// ID is the stable key a stored catalog assigns; zero for an option
	// parsed from a file and not yet stored.
	ID    int64           `json:"id,omitempty"`
	Name  string          `json:"option"`
	Price decimal.Decimal `json:"price"`
}

// Product is a named catalog entry with its options in display order.
type Product struct {
	Name    string   `json:"name"`
	Options []Option `json:"options"`
}

// Option returns the option with the given name.
func (p Product) Option(name string) (Option, bool) {
	for _, o := range p.Options {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

// Catalog is the lookup the order engine consults at purchase time.
// Implementations must answer from their current contents on every call.
type Catalog interface {
	// Product returns the named product. ok is false when no such
	// product exists.
	Product(ctx context.Context, name string) (p Product, ok bool, err error)

	// ProductNames lists product names in display order.
	ProductNames(ctx context.Context) ([]string, error)

	// OptionByID resolves an option key back to its product name and
	// current option. ok is false when the option no longer exists.
	OptionByID(ctx context.Context, id int64) (product string, opt Option, ok bool, err error)
}

// LoadFile reads a products file. See Parse for the format.
func LoadFile(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	products, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return products, nil
}

// Parse decodes a mapping of product name to a mapping of option name to
// price. JSON is accepted as well as YAML:
//
//	{"VPN": {"1 month": "5", "3 months": "12.50"}}
//
// Key order in the document is the display order.
func Parse(data []byte) ([]Product, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping of products", root.Line)
	}

	products := make([]Product, 0, len(root.Content)/2)
	seen := make(map[string]bool)
	for i := 0; i+1 < len(root.Content); i += 2 {
		nameNode, optsNode := root.Content[i], root.Content[i+1]
		name := strings.TrimSpace(nameNode.Value)
		if name == "" {
			return nil, fmt.Errorf("line %d: empty product name", nameNode.Line)
		}
		if seen[name] {
			return nil, fmt.Errorf("line %d: duplicate product %q", nameNode.Line, name)
		}
		seen[name] = true
		if optsNode.Kind != yaml.MappingNode || len(optsNode.Content) == 0 {
			return nil, fmt.Errorf("line %d: product %q needs a mapping of options", optsNode.Line, name)
		}

		product := Product{Name: name}
		for j := 0; j+1 < len(optsNode.Content); j += 2 {
			optNode, priceNode := optsNode.Content[j], optsNode.Content[j+1]
			optName := strings.TrimSpace(optNode.Value)
			if optName == "" {
				return nil, fmt.Errorf("line %d: empty option name in %q", optNode.Line, name)
			}
			if _, dup := product.Option(optName); dup {
				return nil, fmt.Errorf("line %d: duplicate option %q in %q", optNode.Line, optName, name)
			}
			price, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(priceNode.Value), "$"))
			if err != nil {
				return nil, fmt.Errorf("line %d: price of %q/%q: %w", priceNode.Line, name, optName, err)
			}
			if price.IsNegative() {
				return nil, fmt.Errorf("line %d: negative price for %q/%q", priceNode.Line, name, optName)
			}
			product.Options = append(product.Options, Option{Name: optName, Price: price})
		}
		products = append(products, product)
	}
	return products, nil
}
