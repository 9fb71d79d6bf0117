package querykey

import (
	"encoding/binary"
	"math"

	"github.com/jcailloux/relais-core/wire/pg"
)

// writer is a streaming, append-only byte sink that serializes a
// normalized template and its ordered parameters into one buffer, the
// same growing-[]byte-append style wire/pg's message encoder uses. The
// resulting buffer is both the fingerprint hash's input and, kept
// verbatim on QueryCacheKey, the tie-breaking byte-identical comparison
// spec.md 4.8 requires (a hash collision is not proof of equality).
type writer struct {
	buf []byte
}

func (w *writer) writeTemplate(template string) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(template)))
	w.buf = append(w.buf, template...)
}

func (w *writer) writeParams(params []pg.Param) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(params)))
	for _, p := range params {
		w.writeParam(p)
	}
}

func (w *writer) writeParam(p pg.Param) {
	w.buf = append(w.buf, byte(p.Kind))
	switch p.Kind {
	case pg.KindNull:
		// no payload
	case pg.KindBool:
		if p.Bool {
			w.buf = append(w.buf, 1)
		} else {
			w.buf = append(w.buf, 0)
		}
	case pg.KindInt16, pg.KindInt32, pg.KindInt64:
		w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(p.I64))
	case pg.KindFloat32, pg.KindFloat64:
		w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(p.F64))
	case pg.KindText, pg.KindBytes, pg.KindTimestamp:
		w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(p.Bytes)))
		w.buf = append(w.buf, p.Bytes...)
	}
}

func (w *writer) bytes() []byte { return w.buf }
