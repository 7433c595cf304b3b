// Package addons prices line-item addons for one materialization batch.
//
// Addon payloads come in three historical encodings, resolved in order of
// precedence and never merged:
//
//   - Structured: JSON list of {name, price, quantity} under _addons.
//   - KeyValue: numbered _addon_<n>_name / _price / _value tags.
//   - Freeform: text such as "Extra Cheese (+30.00), No Ice (+0.00)" under _addon_text.
//
// For each item the base unit price is max(0, (lineTotal - addonTotal*qty) / qty).
package addons
