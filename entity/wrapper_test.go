package entity

import (
	"encoding/binary"
	"testing"

	"github.com/joeycumines/go-utilpkg/jsonenc"
	"github.com/stretchr/testify/require"
)

type widget struct {
	id   int32
	name string
}

func widgetCodec() Codec[widget] {
	return Codec[widget]{
		EncodeBinary: func(w widget) []byte {
			buf := make([]byte, 4, 4+len(w.name))
			binary.BigEndian.PutUint32(buf, uint32(w.id))
			buf = append(buf, w.name...)
			return buf
		},
		EncodeJSON: func(w widget) []byte {
			buf := []byte(`{"id":`)
			buf = append(buf, []byte(itoa(w.id))...)
			buf = append(buf, []byte(`,"name":`)...)
			buf = jsonenc.AppendString(buf, w.name)
			return append(buf, '}')
		},
	}
}

func itoa(n int32) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

func decodeWidgetBinary(t *testing.T, buf []byte) widget {
	t.Helper()
	require.GreaterOrEqual(t, len(buf), 4)
	id := int32(binary.BigEndian.Uint32(buf[:4]))
	return widget{id: id, name: string(buf[4:])}
}

func TestWrapperMaterializesEachViewOnce(t *testing.T) {
	calls := 0
	w := New(widget{id: 7, name: "gear"}, Codec[widget]{
		EncodeBinary: func(widget) []byte {
			calls++
			return []byte{1, 2, 3}
		},
	})

	first := w.Binary()
	second := w.Binary()
	require.Equal(t, 1, calls)
	require.Same(t, &first[0], &second[0])
}

func TestWrapperBinaryAndJSONRoundTrip(t *testing.T) {
	in := widget{id: 42, name: "sprocket"}
	w := New(in, widgetCodec())

	bin := w.Binary()
	require.Equal(t, in, decodeWidgetBinary(t, bin))

	j := w.JSON()
	require.Equal(t, `{"id":42,"name":"sprocket"}`, string(j))
}

func TestWrapperJSONEscapesControlCharacters(t *testing.T) {
	in := widget{id: 1, name: "line\nbreak\"quote"}
	w := New(in, widgetCodec())
	require.Equal(t, `{"id":1,"name":"line\nbreak\"quote"}`, string(w.JSON()))
}

func TestReleaseCachesDropsOnlyTheCacheReference(t *testing.T) {
	var released bool
	w := New(widget{id: 1}, Codec[widget]{})
	w.OnRelease = func(widget) { released = true }

	require.True(t, w.Acquire()) // reader takes its own hold

	w.ReleaseCaches() // cache gives up its hold
	require.False(t, released, "a reader is still holding a reference")

	bin := w.Binary() // already-handed-out views stay usable after ReleaseCaches
	require.NotNil(t, bin)

	w.Release() // reader gives up its hold
	require.True(t, released)
}

func TestAcquireFailsAfterFullRelease(t *testing.T) {
	w := New(widget{id: 1}, Codec[widget]{})
	w.ReleaseCaches()
	require.False(t, w.Acquire())
}

func TestConcurrentBinaryAllSeeSameArtifact(t *testing.T) {
	w := New(widget{id: 9, name: "shim"}, widgetCodec())
	done := make(chan []byte, 8)
	for i := 0; i < 8; i++ {
		go func() { done <- w.Binary() }()
	}
	first := <-done
	for i := 1; i < 8; i++ {
		require.Equal(t, first, <-done)
	}
}
