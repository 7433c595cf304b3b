package addons

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-orders-master/orderstore"
)

func lineItem(id, orderID int64, qty int, total float64, meta map[string]string) orderstore.LineItem {
	return orderstore.LineItem{ID: id, OrderID: orderID, Name: "item", Quantity: qty, LineTotal: total, Meta: meta}
}

func TestDecode_Precedence(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]string
		want Kind
	}{
		{name: "nothing", meta: nil, want: KindNone},
		{
			name: "structured wins over freeform",
			meta: map[string]string{
				"_addons":     `[{"name":"Extra Sauce","price":10,"quantity":1}]`,
				"_addon_text": "Extra Cheese (+30.00)",
			},
			want: KindStructured,
		},
		{
			name: "tags win over freeform",
			meta: map[string]string{
				"_addon_1_name":  "Size",
				"_addon_1_price": "5",
				"_addon_text":    "Extra Cheese (+30.00)",
			},
			want: KindKeyValue,
		},
		{name: "freeform", meta: map[string]string{"_addon_text": "No Ice"}, want: KindFreeform},
		{name: "blank structured falls through", meta: map[string]string{"_addons": "  "}, want: KindNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(lineItem(1, 1, 1, 0, tt.meta)).Kind())
		})
	}
}

func TestKeyValue_EntriesOrderedByIndex(t *testing.T) {
	enc := Decode(lineItem(1, 1, 1, 0, map[string]string{
		"_addon_2_name":  "Crust",
		"_addon_2_price": "$1.25",
		"_addon_2_value": "Thin",
		"_addon_1_name":  "Size",
		"_addon_1_price": "5.00",
		"_addon_1_value": "Large",
		"_addon_x_name":  "ignored",
	}))

	entries, err := enc.Entries()
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Name: "Size", Option: "Large", Price: 5, Quantity: 1, Subtotal: 5},
		{Name: "Crust", Option: "Thin", Price: 1.25, Quantity: 1, Subtotal: 1.25},
	}, entries)
}

func TestStructured_AcceptsStringAmounts(t *testing.T) {
	entries, err := Structured{Raw: `[{"name":" Bacon ","price":"2.50","quantity":"3"},{"name":"Egg","price":1}]`}.Entries()
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Name: "Bacon", Price: 2.5, Quantity: 3, Subtotal: 7.5},
		{Name: "Egg", Price: 1, Quantity: 1, Subtotal: 1},
	}, entries)
}

func TestParseFreeform(t *testing.T) {
	tests := []struct {
		text string
		want []Entry
	}{
		{
			text: "Extra Cheese (+30.00), No Ice (+0.00)",
			want: []Entry{
				{Name: "Extra Cheese", Price: 30, Quantity: 1, Subtotal: 30},
				{Name: "No Ice", Price: 0, Quantity: 1, Subtotal: 0},
			},
		},
		{
			text: "Croutons (+1.50), Dressing on side, Extra Feta ($2)",
			want: []Entry{
				{Name: "Croutons", Price: 1.5, Quantity: 1, Subtotal: 1.5},
				{Name: "Dressing on side", Price: 0, Quantity: 1, Subtotal: 0},
				{Name: "Extra Feta", Price: 2, Quantity: 1, Subtotal: 2},
			},
		},
		{text: " , ", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFreeform(tt.text))
		})
	}
}

func TestValuation_Build(t *testing.T) {
	v := NewValuation(nil)
	v.Build(map[int64][]orderstore.LineItem{
		501: {
			lineItem(1001, 501, 2, 120, map[string]string{
				"_addons":     `[{"name":"Extra Sauce","price":10,"quantity":1}]`,
				"_addon_text": "Extra Cheese (+30.00)",
			}),
			lineItem(1002, 501, 1, 3.5, nil),
		},
		503: {
			lineItem(1004, 503, 2, 20, map[string]string{"_addon_text": "Croutons (+1.50), Dressing on side, Extra Feta ($2)"}),
		},
		506: {
			lineItem(1006, 506, 1, 99.99, map[string]string{"_addons": `[{"name":"Truffle","price":150,"quantity":1}]`}),
		},
	})

	burger, ok := v.Item(501, 1001)
	require.True(t, ok)
	assert.Equal(t, KindStructured, burger.Kind)
	assert.Equal(t, 10.0, burger.AddonTotal)
	assert.Equal(t, 20.0, burger.TotalWithQuantity)
	assert.Equal(t, 50.0, v.ItemBasePrice(501, 1001))
	assert.Equal(t, []Entry{{Name: "Extra Sauce", Price: 10, Quantity: 1, Subtotal: 10}}, v.ItemAddonDetails(501, 1001))

	assert.Equal(t, 3.5, v.ItemBasePrice(501, 1002))
	assert.Empty(t, v.ItemAddonDetails(501, 1002))
	assert.Equal(t, 20.0, v.OrderAddonTotal(501))

	salad, _ := v.Item(503, 1004)
	assert.Equal(t, 3.5, salad.AddonTotal)
	assert.Equal(t, 6.5, salad.BasePrice)
	assert.Equal(t, 7.0, v.OrderAddonTotal(503))

	assert.Equal(t, 0.0, v.ItemBasePrice(506, 1006), "addon cost above the line total clamps to zero")
	assert.Equal(t, 3, v.Len())
}

func TestValuation_MalformedPayloadZeroesOnlyThatItem(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	v := NewValuation(logger)
	v.Build(map[int64][]orderstore.LineItem{
		505: {
			lineItem(1005, 505, 1, 12, map[string]string{
				"_addons":     "not json",
				"_addon_text": "Extra Salt (+1.00)",
			}),
			lineItem(1008, 505, 1, 6, map[string]string{"_addon_text": "Dip (+1.00)"}),
		},
	})

	fries, ok := v.Item(505, 1005)
	require.True(t, ok)
	assert.Equal(t, KindStructured, fries.Kind, "no fallback to the next encoding")
	assert.Empty(t, fries.Entries)
	assert.Equal(t, 12.0, fries.BasePrice)

	assert.Equal(t, 5.0, v.ItemBasePrice(505, 1008))
	assert.Equal(t, 1.0, v.OrderAddonTotal(505))

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, int64(1005), entry.Data["item_id"])
	assert.Equal(t, "structured", entry.Data["encoding"])
}

func TestValuation_ZeroDefaultsOutsideBatch(t *testing.T) {
	v := NewValuation(nil)
	v.Build(map[int64][]orderstore.LineItem{1: {lineItem(10, 1, 1, 5, nil)}})

	assert.Equal(t, 0.0, v.OrderAddonTotal(2))
	assert.Equal(t, 0.0, v.ItemBasePrice(2, 10))
	assert.Empty(t, v.ItemAddonDetails(1, 99))

	v.Build(map[int64][]orderstore.LineItem{2: {lineItem(20, 2, 1, 5, nil)}})
	_, ok := v.Item(1, 10)
	assert.False(t, ok, "a new batch replaces the previous one")

	v.Reset()
	assert.Equal(t, 0, v.Len())
	assert.Equal(t, 0.0, v.ItemBasePrice(2, 20))
}

func TestValuation_ZeroQuantityTreatedAsOne(t *testing.T) {
	v := NewValuation(nil)
	v.Build(map[int64][]orderstore.LineItem{
		1: {lineItem(10, 1, 0, 8, map[string]string{"_addon_text": "Side (+3)"})},
	})
	assert.Equal(t, 5.0, v.ItemBasePrice(1, 10))
}

func TestValuation_ConcurrentReads(t *testing.T) {
	v := NewValuation(nil)
	v.Build(map[int64][]orderstore.LineItem{
		1: {lineItem(10, 1, 2, 30, map[string]string{"_addon_text": "Side (+5)"})},
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, 10.0, v.ItemBasePrice(1, 10))
			assert.Equal(t, 10.0, v.OrderAddonTotal(1))
		}()
	}
	wg.Wait()
}
