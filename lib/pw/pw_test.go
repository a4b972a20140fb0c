package pw

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const passphrase = "n9824bdS#MD"

func TestSaveLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data", ".luminate-pw")

	if Exists(file) {
		t.Fatalf("password file should not exist yet")
	}
	if err := Save(file, passphrase, "my secret pw"); err != nil {
		t.Fatalf("Save err:%v", err)
	}
	if !Exists(file) {
		t.Fatalf("password file was not written")
	}
	fi, err := os.Stat(file)
	if err != nil {
		t.Fatalf("Stat err:%v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Errorf("password file mode %v expected 0600", fi.Mode().Perm())
	}

	p, err := Load(file, passphrase)
	if err != nil || p != "my secret pw" {
		t.Errorf("Load got %q err:%v", p, err)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".luminate-pw")

	if _, err := Load(file, passphrase); !errors.Is(err, ErrNoPassword) {
		t.Errorf("missing file: got %v expected %v", err, ErrNoPassword)
	}

	if err := Save(file, passphrase, "pw"); err != nil {
		t.Fatalf("Save err:%v", err)
	}
	if _, err := Load(file, "another passphrase"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("wrong passphrase: got %v expected %v", err, ErrDecrypt)
	}

	if err := os.WriteFile(file, []byte("not json"), 0o600); err != nil {
		t.Fatalf("WriteFile err:%v", err)
	}
	if _, err := Load(file, passphrase); err == nil {
		t.Errorf("corrupted file should fail")
	}

	if err := os.WriteFile(file, []byte(`{"salt":"00","nonce":"zz","pw":"00"}`), 0o600); err != nil {
		t.Fatalf("WriteFile err:%v", err)
	}
	if _, err := Load(file, passphrase); err == nil {
		t.Errorf("bad hex should fail")
	}
}

func TestSaveEmpty(t *testing.T) {
	if err := Save(filepath.Join(t.TempDir(), "pw"), passphrase, ""); !errors.Is(err, ErrEmpty) {
		t.Errorf("got %v expected %v", err, ErrEmpty)
	}
}

func TestSealOpen(t *testing.T) {
	s, n, b, err := Seal([]byte("SBETEA3Z3OYHLSKKZWBVXQSX7NKTWCEQMUWOEITXMQVBKUOR5ZMCIE3I"), "pw")
	if err != nil {
		t.Fatalf("Seal err:%v", err)
	}
	// a second seal uses a new salt and nonce
	s2, n2, _, err := Seal([]byte("SBETEA3Z3OYHLSKKZWBVXQSX7NKTWCEQMUWOEITXMQVBKUOR5ZMCIE3I"), "pw")
	if err != nil {
		t.Fatalf("Seal err:%v", err)
	}
	if s == s2 || n == n2 {
		t.Errorf("salt and nonce must be random")
	}

	data, err := Open(s, n, b, "pw")
	if err != nil || string(data) != "SBETEA3Z3OYHLSKKZWBVXQSX7NKTWCEQMUWOEITXMQVBKUOR5ZMCIE3I" {
		t.Errorf("Open got %s err:%v", data, err)
	}
	if _, err = Open(s, n[:10], b, "pw"); err == nil {
		t.Errorf("short nonce should fail")
	}
}
