package rpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtract_SingleCall(t *testing.T) {
	c := Extract([]byte(`{"method":"dna_identity","key":"K","params":["0xabc"]}`))
	require.NotNil(t, c)
	require.Equal(t, "dna_identity", c.Method)
	require.Equal(t, "K", c.Key)
	require.JSONEq(t, `["0xabc"]`, string(c.Params))
}

func TestExtract_BatchWithSyncing(t *testing.T) {
	c := Extract([]byte(`[{"method":"dna_identity","key":"K"},{"method":"bcn_syncing"}]`))
	require.NotNil(t, c)
	require.Equal(t, "dna_identity", c.Method)
	require.Equal(t, "K", c.Key)
}

func TestExtract_Rejected(t *testing.T) {
	cases := map[string]string{
		"empty":            ``,
		"whitespace":       "  \n ",
		"invalid json":     `{"method":`,
		"scalar":           `"dna_identity"`,
		"number":           `42`,
		"other meta":       `[{"method":"dna_identity","key":"K"},{"method":"other"}]`,
		"meta missing":     `[{"method":"dna_identity","key":"K"},{}]`,
		"meta null":        `[{"method":"dna_identity","key":"K"},null]`,
		"single element":   `[{"method":"dna_identity","key":"K"}]`,
		"three elements":   `[{"method":"dna_identity","key":"K"},{"method":"bcn_syncing"},{"method":"bcn_syncing"}]`,
		"empty array":      `[]`,
		"first not object": `["dna_identity",{"method":"bcn_syncing"}]`,
	}
	for name, body := range cases {
		if c := Extract([]byte(body)); c != nil {
			t.Fatalf("%s: expected nil, got %+v", name, c)
		}
	}
}

func TestExtract_MissingKeyStillExtracted(t *testing.T) {
	c := Extract([]byte(`{"method":"dna_epoch"}`))
	require.NotNil(t, c)
	require.False(t, c.HasKey())
}

func TestParse_FlagsBatch(t *testing.T) {
	p := Parse([]byte(` [{"method":"dna_identity","key":"K"},{"method":"bcn_syncing"}]`))
	require.True(t, p.Batched)
	require.NotNil(t, p.Call)

	p = Parse([]byte(`{"method":"dna_identity","key":"K"}`))
	require.False(t, p.Batched)
}

func TestPayloadContext(t *testing.T) {
	require.Nil(t, CallFrom(context.Background()))

	p := Parse([]byte(`{"method":"dna_epoch","key":"K"}`))
	ctx := WithPayload(context.Background(), p)
	require.Same(t, p, PayloadFrom(ctx))
	require.Equal(t, "dna_epoch", CallFrom(ctx).Method)
}

func TestExtract_RejectsFieldCaseVariants(t *testing.T) {
	cases := map[string]string{
		"method variant":        `{"method":"admin_secret","Method":"dna_epoch","key":"K"}`,
		"method only variant":   `{"METHOD":"dna_epoch","key":"K"}`,
		"params variant":        `{"method":"dna_identity","params":["0xabc"],"Params":["0xdef"],"key":"K"}`,
		"key variant":           `{"method":"dna_epoch","key":"K","Key":"other"}`,
		"kelvin sign key":       "{\"method\":\"dna_epoch\",\"key\":\"K\",\"\u212Aey\":\"other\"}",
		"batch call variant":    `[{"method":"dna_epoch","Method":"admin_secret","key":"K"},{"method":"bcn_syncing"}]`,
		"batch meta variant":    `[{"method":"dna_epoch","key":"K"},{"method":"bcn_syncing","Method":"admin_secret"}]`,
		"method wrong type":     `{"method":1,"key":"K"}`,
		"key wrong type":        `{"method":"dna_epoch","key":["K"]}`,
		"batch meta non-string": `[{"method":"dna_epoch","key":"K"},{"method":true}]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			require.Nil(t, Extract([]byte(body)))
		})
	}
}

func TestExtract_ExactFieldsOnly(t *testing.T) {
	c := Extract([]byte(`{"method":"dna_epoch","key":"K","params":null,"id":3,"jsonrpc":"2.0"}`))
	require.NotNil(t, c)
	require.Equal(t, "dna_epoch", c.Method)
	require.Equal(t, "K", c.Key)
	require.Nil(t, c.Params)

	c = Extract([]byte(`{"key":"K"}`))
	require.NotNil(t, c)
	require.Empty(t, c.Method)
}
