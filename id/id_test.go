package id_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tickledger/id"
)

// kinds lists every identifier the engine issues.
var kinds = []struct {
	name   string
	prefix id.Prefix
	newFn  func() id.ID
	parse  func(string) (id.ID, error)
}{
	{"instance", id.PrefixInstance, id.NewInstanceID, id.ParseInstanceID},
	{"subscription", id.PrefixSubscription, id.NewSubscriptionID, id.ParseSubscriptionID},
	{"purchase", id.PrefixPurchase, id.NewPurchaseID, id.ParsePurchaseID},
	{"settlement", id.PrefixSettlement, id.NewSettlementID, id.ParseSettlementID},
}

func TestKindsRoundTrip(t *testing.T) {
	for _, k := range kinds {
		t.Run(k.name, func(t *testing.T) {
			original := k.newFn()
			require.False(t, original.IsNil())
			assert.Equal(t, k.prefix, original.Prefix())
			assert.Regexp(t, "^"+string(k.prefix)+"_[0-9a-z]{26}$", original.String())

			parsed, err := k.parse(original.String())
			require.NoError(t, err)
			assert.Equal(t, original.String(), parsed.String())
		})
	}
}

func TestKindsRejectEachOther(t *testing.T) {
	for _, k := range kinds {
		for _, other := range kinds {
			if other.prefix == k.prefix {
				continue
			}
			_, err := k.parse(other.newFn().String())
			require.Error(t, err, "%s parser accepted a %s id", k.name, other.name)
			assert.Contains(t, err.Error(), string(other.prefix))
		}
	}
}

// receipt mirrors how purchase and settlement receipts embed ids.
type receipt struct {
	Instance   id.InstanceID       `json:"instance"`
	Purchase   id.PurchaseID       `json:"purchase"`
	Settlement id.SettlementID     `json:"settlement"`
	Covers     []id.SubscriptionID `json:"covers"`
	Refund     id.PurchaseID       `json:"refund"`
}

func TestJSONRoundTrip(t *testing.T) {
	in := receipt{
		Instance:   id.NewInstanceID(),
		Purchase:   id.NewPurchaseID(),
		Settlement: id.NewSettlementID(),
		Covers:     []id.SubscriptionID{id.NewSubscriptionID(), id.NewSubscriptionID()},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"purchase":"pur_`)
	assert.Contains(t, string(data), `"settlement":"stl_`)
	assert.Contains(t, string(data), `"refund":""`)

	var out receipt
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.Instance.String(), out.Instance.String())
	assert.Equal(t, in.Purchase.String(), out.Purchase.String())
	assert.Equal(t, in.Settlement.String(), out.Settlement.String())
	require.Len(t, out.Covers, 2)
	assert.Equal(t, in.Covers[1].String(), out.Covers[1].String())
	assert.True(t, out.Refund.IsNil())

	_, err = id.ParseSettlementID(out.Settlement.String())
	require.NoError(t, err)
}

func TestJSONRejectsMalformed(t *testing.T) {
	var out receipt
	require.Error(t, json.Unmarshal([]byte(`{"purchase":"pur_not-a-typeid"}`), &out))
}

func TestParseEmpty(t *testing.T) {
	_, err := id.Parse("")
	require.Error(t, err)
}

func TestNilID(t *testing.T) {
	var i id.ID
	assert.True(t, i.IsNil())
	assert.Empty(t, i.String())
	assert.Empty(t, i.Prefix())
}

func TestMustParseWithPrefix(t *testing.T) {
	stl := id.NewSettlementID()
	assert.Equal(t, stl.String(), id.MustParseWithPrefix(stl.String(), id.PrefixSettlement).String())
	assert.Panics(t, func() { id.MustParseWithPrefix(stl.String(), id.PrefixPurchase) })
	assert.Panics(t, func() { id.MustParse("") })
}

func TestValueScan(t *testing.T) {
	original := id.NewSubscriptionID()
	val, err := original.Value()
	require.NoError(t, err)

	var fromString id.ID
	require.NoError(t, fromString.Scan(val))
	assert.Equal(t, original.String(), fromString.String())

	var fromBytes id.ID
	require.NoError(t, fromBytes.Scan([]byte(original.String())))
	assert.Equal(t, original.String(), fromBytes.String())

	nilVal, err := id.Nil.Value()
	require.NoError(t, err)
	assert.Nil(t, nilVal)

	var scanned id.ID
	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsNil())

	require.Error(t, scanned.Scan(42))
}

func TestUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		s := id.NewPurchaseID().String()
		_, dup := seen[s]
		require.False(t, dup, "duplicate purchase id %s", s)
		seen[s] = struct{}{}
	}
}
