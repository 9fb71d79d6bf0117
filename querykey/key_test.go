package querykey

import (
	"testing"

	"github.com/jcailloux/relais-core/wire/pg"
	"github.com/stretchr/testify/require"
)

func TestBuildKeyIsStableForIdenticalInput(t *testing.T) {
	params := []pg.Param{pg.Int64Param(7), pg.TextParam("alice")}
	k1 := BuildKey("SELECT * FROM t WHERE id = $1 AND name = $2", params)
	k2 := BuildKey("SELECT * FROM t WHERE id = $1 AND name = $2", params)
	require.Equal(t, k1.Hash, k2.Hash)
	require.True(t, k1.Equal(k2))
}

func TestBuildKeyDiffersOnDifferentParamValues(t *testing.T) {
	k1 := BuildKey("SELECT * FROM t WHERE id = $1", []pg.Param{pg.Int64Param(1)})
	k2 := BuildKey("SELECT * FROM t WHERE id = $1", []pg.Param{pg.Int64Param(2)})
	require.False(t, k1.Equal(k2))
	require.NotEqual(t, k1.Hash, k2.Hash)
}

func TestBuildKeyDiffersOnDifferentTemplates(t *testing.T) {
	k1 := BuildKey("SELECT a FROM t WHERE id = $1", []pg.Param{pg.Int64Param(1)})
	k2 := BuildKey("SELECT b FROM t WHERE id = $1", []pg.Param{pg.Int64Param(1)})
	require.False(t, k1.Equal(k2))
}

func TestBuildKeyDistinguishesParamKindOverRawBytes(t *testing.T) {
	// "1" as text vs 1 as int64 must not collide even if some encoding
	// quirk made their payload bytes overlap, since the kind tag is part
	// of the written buffer.
	k1 := BuildKey("SELECT * FROM t WHERE v = $1", []pg.Param{pg.TextParam("1")})
	k2 := BuildKey("SELECT * FROM t WHERE v = $1", []pg.Param{pg.Int64Param(1)})
	require.False(t, k1.Equal(k2))
}

func TestEqualRequiresByteIdenticalBufferNotJustHashMatch(t *testing.T) {
	k := BuildKey("SELECT * FROM t WHERE id = $1", []pg.Param{pg.Int64Param(1)})
	// simulate a hash collision: same Hash field, tampered Buffer.
	forged := QueryCacheKey{Hash: k.Hash, Buffer: append([]byte(nil), k.Buffer...)}
	forged.Buffer[len(forged.Buffer)-1] ^= 0xFF
	require.False(t, k.Equal(forged))
}
