// Package whitelist shrinks JSON payloads for constrained clients. A Descriptor
// lists, per nesting level, the object keys that survive; Rules attach
// descriptors to dotted paths inside a response envelope (for example
// "config" or "data.collection"). Values are handled as an order-preserving
// tree so filtered output keeps the loader's original key order.
package whitelist
