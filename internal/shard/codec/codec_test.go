package codec

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const doxygenShard = `var searchData=
[
  ['rapidjson_5fdisableif_5freturn',['RAPIDJSON_DISABLEIF_RETURN',['../class_generic_value.html#a4a44',1,'GenericValue::RAPIDJSON_DISABLEIF_RETURN()'],['../class_generic_pointer.html#aaf4d',1,'GenericPointer::RAPIDJSON_DISABLEIF_RETURN((internal::NotExpr&lt; T &gt;))']]],
  ['rawassign',['RawAssign',['../class_generic_value.html#abb8e',1,'GenericValue']]],
  ['rawnumber',['RawNumber',['../struct_base_reader_handler.html#a9ed0',1,'BaseReaderHandler']]],
  ['read',['read',['../class_source_manager.html#a1b92',1,'EmojicodeCompiler::SourceManager']]],
  ['realloc',['Realloc',['https://example.com/realloc.html',0,'MemoryPoolAllocator']]]
];
`

func TestDecodeDoxygen(t *testing.T) {
	entries, err := DecodeDoxygen([]byte(doxygenShard), symbol.KindFunction)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	first := entries[0]
	assert.Equal(t, "rapidjson_disableif_return", first.Key)
	assert.Equal(t, "RAPIDJSON_DISABLEIF_RETURN", first.DisplayName)
	assert.Equal(t, symbol.KindFunction, first.Kind)
	require.Len(t, first.Targets, 2)
	assert.Equal(t, "GenericPointer::RAPIDJSON_DISABLEIF_RETURN((internal::NotExpr< T >))", first.Targets[1].ContainerLabel)

	realloc := entries[4]
	assert.Equal(t, "realloc", realloc.Key)
	assert.True(t, realloc.Targets[0].External)
	assert.False(t, first.Targets[0].External)

	for i := 1; i < len(entries); i++ {
		assert.LessOrEqual(t, entries[i-1].Key, entries[i].Key)
	}
}

func TestDecodeDoxygenMergesSameKey(t *testing.T) {
	src := `var searchData=[
  ['operator_3c_3c',['operator&lt;&lt;',['a.html#1',1,'A']]],
  ['operator_3e_3e',['operator&gt;&gt;',['b.html#2',1,'B']]],
  ['_7e',['~',['c.html#3',1,'C']]]
];`
	entries, err := DecodeDoxygen([]byte(src), symbol.KindFunction)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "operator", entries[0].Key)
	assert.Equal(t, "operator<<", entries[0].DisplayName)
	assert.Len(t, entries[0].Targets, 2)
}

func TestDecodeDoxygenRejectsGarbage(t *testing.T) {
	_, err := DecodeDoxygen([]byte(`var searchData=[['x',['X']]];`), symbol.KindClass)
	assert.ErrorIs(t, err, apperrors.ErrInvalidShard)

	_, err = DecodeDoxygen([]byte(`var other=[];`), symbol.KindClass)
	assert.ErrorIs(t, err, apperrors.ErrInvalidShard)

	_, err = DecodeDoxygen([]byte(`var searchData=[['x',['X',['u.html',1,'unterminated]]];`), symbol.KindClass)
	assert.ErrorIs(t, err, apperrors.ErrInvalidShard)
}

func TestParseJSVarRejectsDeepNesting(t *testing.T) {
	src := "var searchData=" + strings.Repeat("[", 1_000_000)
	_, err := DecodeDoxygen([]byte(src), symbol.KindClass)
	assert.ErrorIs(t, err, apperrors.ErrInvalidShard)

	nested := "var v=" + strings.Repeat("[", maxNesting) + strings.Repeat("]", maxNesting) + ";"
	_, err = ParseJSVar([]byte(nested), "v")
	assert.NoError(t, err)

	tooDeep := "var v=" + strings.Repeat("{a:", maxNesting) + "[]" + strings.Repeat("}", maxNesting) + ";"
	_, err = ParseJSVar([]byte(tooDeep), "v")
	assert.ErrorIs(t, err, apperrors.ErrInvalidShard)
}

func TestParseJSVarObjects(t *testing.T) {
	src := `var indexSectionsWithContent =
{
  0: "_abc~",
  1: 'v'
};
/* comment */
var indexSectionNames = { 0: "all", 1: "classes" }; // trailing`
	v, err := ParseJSVar([]byte(src), "indexSectionsWithContent")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"0": "_abc~", "1": "v"}, v)

	v, err = ParseJSVar([]byte(src), "indexSectionNames")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"0": "all", "1": "classes"}, v)
}

func TestSegmentRoundTrip(t *testing.T) {
	entries := []symbol.Entry{
		symbol.NewEntry("Vector", symbol.KindClass, symbol.Target{LocationURL: "class_vector.html", ContainerLabel: "std"}),
		symbol.NewEntry("VectorIterator", symbol.KindClass, symbol.Target{LocationURL: "class_vector_iterator.html"}),
	}
	var buf bytes.Buffer
	require.NoError(t, EncodeSegment(&buf, entries))

	got, err := DecodeSegment(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, entries, got)

	s, err := Decode(FormatSegment, shard.ID{Category: "classes", Bucket: 0x15}, symbol.KindUnknown, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
}

func TestSegmentCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSegment(&buf, []symbol.Entry{
		symbol.NewEntry("Vector", symbol.KindClass, symbol.Target{LocationURL: "v.html"}),
	}))
	data := buf.Bytes()

	flipped := append([]byte(nil), data...)
	flipped[HeaderSize+2] ^= 0xff
	_, err := DecodeSegment(flipped)
	assert.ErrorIs(t, err, apperrors.ErrInvalidShard)

	badMagic := append([]byte(nil), data...)
	badMagic[0] = 0
	_, err = DecodeSegment(badMagic)
	assert.ErrorIs(t, err, apperrors.ErrInvalidShard)

	_, err = DecodeSegment(data[:HeaderSize])
	assert.ErrorIs(t, err, apperrors.ErrInvalidShard)
}

func TestWriteSegmentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "classes_15.seg")
	entries := []symbol.Entry{symbol.NewEntry("Vector", symbol.KindClass, symbol.Target{LocationURL: "v.html"})}
	require.NoError(t, WriteSegmentFile(path, entries))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	got, err := DecodeSegment(data)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
	assert.NoFileExists(t, path+".tmp")
}

func TestDecodeUnknownFormat(t *testing.T) {
	_, err := Decode(Format("xml"), shard.ID{Category: "classes"}, symbol.KindClass, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = ParseFormat("xml")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	f, err := ParseFormat("segment")
	require.NoError(t, err)
	assert.Equal(t, ".seg", f.Extension())
}
