package security

import (
	"testing"

	"github.com/wudi/pdfsanitize/ir/raw"
)

// TestStandardRC4Decrypt exercises the Standard security handler's
// authentication and decrypt path, the one the structural parser drives
// for every stream and string object in an encrypted document.
func TestStandardRC4Decrypt(t *testing.T) {
	owner := raw.StringObj{Bytes: []byte("ownerpass")}
	fileID := []byte("fileid0")
	pVal := int32(-4)

	key, err := deriveKey([]byte(""), owner.Value(), pVal, fileID, 5, 2)
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	user := rc4Simple(key, passwordPadding)

	enc := raw.Dict()
	enc.Set(raw.NameObj{Val: "Filter"}, raw.NameObj{Val: "Standard"})
	enc.Set(raw.NameObj{Val: "V"}, raw.NumberInt(1))
	enc.Set(raw.NameObj{Val: "R"}, raw.NumberInt(2))
	enc.Set(raw.NameObj{Val: "Length"}, raw.NumberInt(40))
	enc.Set(raw.NameObj{Val: "O"}, owner)
	enc.Set(raw.NameObj{Val: "U"}, raw.StringObj{Bytes: user})
	enc.Set(raw.NameObj{Val: "P"}, raw.NumberObj{I: int64(pVal), IsInt: true})

	h, err := (&HandlerBuilder{}).WithEncryptDict(enc).WithFileID(fileID).Build()
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	if err := h.Authenticate(""); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !h.IsEncrypted() {
		t.Fatalf("expected handler to report encrypted")
	}

	plain := []byte("secret data")
	sh := h.(*standardHandler)
	objKey := objectKey(sh.key, 5, 0, 2, false)
	ciphertext := rc4Simple(objKey, plain)

	decData, err := h.Decrypt(5, 0, ciphertext, DataClassStream)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(decData) != string(plain) {
		t.Fatalf("roundtrip mismatch: got %q want %q", decData, plain)
	}
}

func TestNoEncryptionHandlerPassesThrough(t *testing.T) {
	h := NoopHandler()
	if h.IsEncrypted() {
		t.Fatalf("noop handler must report unencrypted")
	}
	data := []byte("plain bytes")
	out, err := h.Decrypt(1, 0, data, DataClassStream)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(out) != string(data) {
		t.Fatalf("noop handler must pass data through unchanged")
	}
}
