// Package orders implements the order lifecycle:
//
//	pending -> awaiting_confirmation   buyer taps "I have paid"
//	awaiting_confirmation -> paid      admin confirms
//	awaiting_confirmation -> rejected  admin rejects
//	paid -> delivered                  admin submits the product content
//	pending -> cancelled               buyer cancels, or the sweep expires it
//
// delivered, rejected and cancelled are terminal. Orders are never
// removed.
//
// Every transition re-reads the order and writes it back through
// Store.UpdateOrderStatus with the expected previous status, so two
// admins, a double tap, or the background sweep racing a buyer can never
// apply the same transition twice.
package orders
