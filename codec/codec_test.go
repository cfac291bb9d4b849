package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplicationRoundTrip(t *testing.T) {
	data := []byte("Hello, World!")
	p := Replication(3)

	frags, err := Encode(data, p)
	require.NoError(t, err)
	require.Len(t, frags, 3)

	got, err := Decode(frags, p, int64(len(data)))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestReplicationDecodeFirstPresent(t *testing.T) {
	data := []byte("payload")
	p := Replication(3)
	frags, err := Encode(data, p)
	require.NoError(t, err)

	frags[0] = nil
	got, err := Decode(frags, p, int64(len(data)))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestReplicationInsufficientFragments(t *testing.T) {
	p := Replication(2)
	_, err := Decode([][]byte{nil, nil}, p, 0)
	require.Error(t, err)
	var ief *ErrInsufficientFragments
	require.ErrorAs(t, err, &ief)
}

func TestErasureRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{0xCC}, 3<<20) // 3 MiB
	p := ErasureCoding(4, 2)

	frags, err := Encode(data, p)
	require.NoError(t, err)
	require.Len(t, frags, 6)

	got, err := Decode(frags, p, int64(len(data)))
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got))
}

func TestErasureSurvivesTwoLosses(t *testing.T) {
	data := bytes.Repeat([]byte{0xCC}, 3<<20)
	p := ErasureCoding(4, 2)

	frags, err := Encode(data, p)
	require.NoError(t, err)

	frags[1] = nil
	frags[3] = nil

	got, err := Decode(frags, p, int64(len(data)))
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got))
}

func TestErasureInsufficientFragments(t *testing.T) {
	data := []byte("some data that needs protecting")
	p := ErasureCoding(4, 2)
	frags, err := Encode(data, p)
	require.NoError(t, err)

	frags[0] = nil
	frags[1] = nil
	frags[2] = nil
	_, err = Decode(frags, p, int64(len(data)))
	require.Error(t, err)
}

func TestReencodeRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA}, 512<<10)
	oldP := Replication(3)
	newP := ErasureCoding(4, 2)

	frags, err := Encode(data, oldP)
	require.NoError(t, err)

	reenc, err := Reencode(frags, oldP, newP, int64(len(data)))
	require.NoError(t, err)
	require.Len(t, reenc, 6)

	got, err := Decode(reenc, newP, int64(len(data)))
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got))
}

func TestChecksumStable(t *testing.T) {
	data := []byte("checksum me")
	a := Checksum(data)
	b := Checksum(data)
	require.Equal(t, a, b)

	c := Checksum([]byte("checksum me!"))
	require.NotEqual(t, a, c)
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, Replication(1).Validate())
	require.Error(t, Replication(0).Validate())
	require.NoError(t, ErasureCoding(4, 2).Validate())
	require.Error(t, ErasureCoding(0, 2).Validate())
	require.Error(t, ErasureCoding(200, 200).Validate())
}

func TestFragmentCounts(t *testing.T) {
	require.Equal(t, 3, Replication(3).FragmentCount())
	require.Equal(t, 1, Replication(3).MinFragmentsForRead())
	require.Equal(t, 6, ErasureCoding(4, 2).FragmentCount())
	require.Equal(t, 4, ErasureCoding(4, 2).MinFragmentsForRead())
}
