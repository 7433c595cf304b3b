package addons

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goliatone/go-orders-master/orderstore"
)

// Kind tags which historical encoding an item's addon payload uses.
type Kind int

const (
	KindNone Kind = iota
	KindStructured
	KindKeyValue
	KindFreeform
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindKeyValue:
		return "key_value"
	case KindFreeform:
		return "freeform"
	default:
		return "none"
	}
}

// Entry is one resolved addon of a line item.
type Entry struct {
	Name     string  `json:"name" msgpack:"name"`
	Option   string  `json:"option,omitempty" msgpack:"option,omitempty"`
	Price    float64 `json:"price" msgpack:"price"`
	Quantity int     `json:"quantity" msgpack:"quantity"`
	Subtotal float64 `json:"subtotal" msgpack:"subtotal"`
}

func newEntry(name, option string, price float64, qty int) Entry {
	if qty <= 0 {
		qty = 1
	}
	return Entry{
		Name:     name,
		Option:   option,
		Price:    price,
		Quantity: qty,
		Subtotal: round2(price * float64(qty)),
	}
}

// Encoding is the addon payload of one line item. Exactly one of the
// concrete types Structured, KeyValue, Freeform or None is returned by Decode.
type Encoding interface {
	Kind() Kind
	// Entries resolves the payload. An error means the payload is malformed
	// and the item carries no addon cost.
	Entries() ([]Entry, error)
}

// None is an item without addons.
type None struct{}

func (None) Kind() Kind                { return KindNone }
func (None) Entries() ([]Entry, error) { return nil, nil }

// Structured is a JSON list of {name, price, quantity} tuples.
type Structured struct {
	Raw string
}

func (Structured) Kind() Kind { return KindStructured }

type structuredAddon struct {
	Name     string `json:"name"`
	Price    amount `json:"price"`
	Quantity amount `json:"quantity"`
}

func (s Structured) Entries() ([]Entry, error) {
	var raw []structuredAddon
	if err := json.Unmarshal([]byte(s.Raw), &raw); err != nil {
		return nil, fmt.Errorf("structured addons: %w", err)
	}
	out := make([]Entry, 0, len(raw))
	for _, a := range raw {
		out = append(out, newEntry(strings.TrimSpace(a.Name), "", float64(a.Price), int(a.Quantity)))
	}
	return out, nil
}

// KeyValueTag is one numbered name/price/value triple.
type KeyValueTag struct {
	Index int
	Name  string
	Price string
	Value string
}

// KeyValue is the tag encoding of an older integration: _addon_<n>_name,
// _addon_<n>_price and _addon_<n>_value meta per addon. The value is the
// chosen option and every tag counts once.
type KeyValue struct {
	Tags []KeyValueTag
}

func (KeyValue) Kind() Kind { return KindKeyValue }

func (kv KeyValue) Entries() ([]Entry, error) {
	out := make([]Entry, 0, len(kv.Tags))
	for _, tag := range kv.Tags {
		price := 0.0
		if p := strings.TrimSpace(tag.Price); p != "" {
			v, err := strconv.ParseFloat(strings.TrimPrefix(p, "$"), 64)
			if err != nil {
				return nil, fmt.Errorf("addon tag %d: invalid price %q", tag.Index, tag.Price)
			}
			price = v
		}
		out = append(out, newEntry(tag.Name, tag.Value, price, 1))
	}
	return out, nil
}

// Freeform is a human readable addon list.
type Freeform struct {
	Text string
}

func (Freeform) Kind() Kind { return KindFreeform }

func (f Freeform) Entries() ([]Entry, error) {
	return ParseFreeform(f.Text), nil
}

// Decode picks the encoding of item by precedence: structured, then key/value
// tags, then freeform text. Encodings are never merged.
func Decode(item orderstore.LineItem) Encoding {
	if raw := strings.TrimSpace(item.Meta[orderstore.ItemMetaAddons]); raw != "" {
		return Structured{Raw: raw}
	}
	if tags := keyValueTags(item.Meta); len(tags) > 0 {
		return KeyValue{Tags: tags}
	}
	if text := strings.TrimSpace(item.Meta[orderstore.ItemMetaAddonText]); text != "" {
		return Freeform{Text: text}
	}
	return None{}
}

func keyValueTags(meta map[string]string) []KeyValueTag {
	byIndex := map[int]*KeyValueTag{}
	for key, value := range meta {
		rest, ok := strings.CutPrefix(key, orderstore.ItemMetaAddonPrefix)
		if !ok {
			continue
		}
		idx, field, ok := strings.Cut(rest, "_")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(idx)
		if err != nil {
			continue
		}
		tag, ok := byIndex[n]
		if !ok {
			tag = &KeyValueTag{Index: n}
			byIndex[n] = tag
		}
		switch field {
		case "name":
			tag.Name = strings.TrimSpace(value)
		case "price":
			tag.Price = value
		case "value":
			tag.Value = strings.TrimSpace(value)
		}
	}

	tags := make([]KeyValueTag, 0, len(byIndex))
	for _, tag := range byIndex {
		if tag.Name == "" && tag.Value == "" {
			continue
		}
		tags = append(tags, *tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Index < tags[j].Index })
	return tags
}

// amount accepts a JSON number or a numeric string.
type amount float64

func (a *amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*a = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("invalid amount %s", data)
	}
	*a = amount(v)
	return nil
}
