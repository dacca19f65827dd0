package codec_test

import (
	"testing"
	"time"

	"github.com/embedkit/embedkit/codec"
	"github.com/embedkit/embedkit/schema"
	"github.com/stretchr/testify/require"
)

func testTable() schema.Table {
	return schema.Table{
		Name: "events",
		Columns: []schema.Column{
			{Name: "id", Kind: schema.KindInt, Primary: true, AutoIncrement: true},
			{Name: "label", Kind: schema.KindText},
			{Name: "archived", Kind: schema.KindBool},
			{Name: "occurred_at", Kind: schema.KindDate},
			{Name: "payload", Kind: schema.KindJSON},
		},
	}
}

func TestEncodeValueBoolToInteger(t *testing.T) {
	col := schema.Column{Name: "archived", Kind: schema.KindBool}

	v, err := codec.EncodeValue(col, true)
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	v, err = codec.EncodeValue(col, false)
	require.NoError(t, err)
	require.Equal(t, int64(0), v)
}

func TestEncodeValueDateToEpochMillis(t *testing.T) {
	col := schema.Column{Name: "occurred_at", Kind: schema.KindDate}
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	v, err := codec.EncodeValue(col, ts)
	require.NoError(t, err)
	require.Equal(t, ts.UnixMilli(), v)
}

func TestEncodeValueJSONStringifies(t *testing.T) {
	col := schema.Column{Name: "payload", Kind: schema.KindJSON}

	v, err := codec.EncodeValue(col, map[string]any{"a": 1})
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, v.(string))
}

func TestEncodeValueNullPassesThrough(t *testing.T) {
	col := schema.Column{Name: "label", Kind: schema.KindText}
	v, err := codec.EncodeValue(col, nil)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestDecodeValueBoolFromInteger(t *testing.T) {
	col := schema.Column{Name: "archived", Kind: schema.KindBool}

	v, err := codec.DecodeValue(col, int64(1))
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = codec.DecodeValue(col, int64(0))
	require.NoError(t, err)
	require.Equal(t, false, v)
}

func TestDecodeValueDateFromEpochMillis(t *testing.T) {
	col := schema.Column{Name: "occurred_at", Kind: schema.KindDate}
	ts := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)

	v, err := codec.DecodeValue(col, ts.UnixMilli())
	require.NoError(t, err)
	require.True(t, ts.Equal(v.(time.Time)))
}

func TestDecodeValueJSONParsesWithSilentFallback(t *testing.T) {
	col := schema.Column{Name: "payload", Kind: schema.KindJSON}

	v, err := codec.DecodeValue(col, `{"a":1}`)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": float64(1)}, v)

	v, err = codec.DecodeValue(col, `not json`)
	require.NoError(t, err)
	require.Equal(t, "not json", v)
}

func TestDecodeRowPassesThroughUnknownColumns(t *testing.T) {
	tbl := testTable()
	row, err := codec.DecodeRow(tbl, []string{"label", "count(*)"}, []any{"hi", int64(3)})
	require.NoError(t, err)
	require.Equal(t, "hi", row["label"])
	require.Equal(t, int64(3), row["count(*)"])
}
