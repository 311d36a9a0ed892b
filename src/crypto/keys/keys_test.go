package keys

import (
	"io/ioutil"
	"os"
	"path"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyfile(t *testing.T) {
	dir, err := ioutil.TempDir("", "ledgerclient")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	keyfile := NewKeyfile(path.Join(dir, "operator", "key"))

	// Try a read, should get nothing
	key, err := keyfile.ReadKey()
	if err == nil {
		t.Fatalf("ReadKey should generate an error")
	}
	if key != nil {
		t.Fatalf("key is not nil")
	}

	key, _ = GenerateECDSAKey()

	if err := keyfile.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	nKey, err := keyfile.ReadKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !reflect.DeepEqual(DumpPrivateKey(nKey), DumpPrivateKey(key)) {
		t.Fatalf("Keys do not match")
	}
}

func TestFilePermissions(t *testing.T) {
	dir, err := ioutil.TempDir("", "ledgerclient")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	key, _ := GenerateECDSAKey()
	rawKey := PrivateKeyHex(key)

	for _, fm := range []os.FileMode{0777, 0744, 0666, 0644, 0444} {
		p := path.Join(dir, "bad")
		os.Remove(p)
		ioutil.WriteFile(p, []byte(rawKey), fm)

		if _, err := NewKeyfile(p).ReadKey(); err == nil {
			t.Fatalf("%o || ReadKey should return a permissions error", fm)
		}
	}

	for _, fm := range []os.FileMode{0700, 0600, 0400} {
		p := path.Join(dir, "good")
		os.Remove(p)
		ioutil.WriteFile(p, []byte(rawKey), fm)

		if _, err := NewKeyfile(p).ReadKey(); err != nil {
			t.Fatalf("%o || ReadKey should not return an error. Got %v", fm, err)
		}
	}
}

func TestPrivateKeyHex(t *testing.T) {
	key, err := GenerateECDSAKey()
	require.NoError(t, err)

	parsed, err := PrivateKeyFromHex("0x" + PrivateKeyHex(key))
	require.NoError(t, err)
	assert.Equal(t, key.D, parsed.D)
	assert.Equal(t, FromPublicKey(&key.PublicKey), FromPublicKey(&parsed.PublicKey))

	for _, s := range []string{"00", "", "0", "0x"} {
		_, err = PrivateKeyFromHex(s)
		assert.Error(t, err, s)
	}
}

func TestSignVerify(t *testing.T) {
	key, err := GenerateECDSAKey()
	require.NoError(t, err)

	msg := []byte("transfer 1 hbar from 0.0.2 to 0.0.3")

	sig, err := Sign(key, msg)
	require.NoError(t, err)
	assert.Len(t, sig, 64)

	ok, err := Verify(&key.PublicKey, msg, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(&key.PublicKey, []byte("tampered"), sig)
	require.NoError(t, err)
	assert.False(t, ok)

	pub := ToPublicKey(FromPublicKey(&key.PublicKey))
	ok, _ = Verify(pub, msg, sig)
	assert.True(t, ok)

	_, err = Verify(&key.PublicKey, msg, sig[:10])
	assert.Error(t, err)
}
