package keystore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stellar/go/keypair"

	"github.com/tarancss/stellarsvc/lib/pw"
)

const password = "avatar password"

func TestCreateLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "stellar")

	acc, err := Create(password, dir, Prefix)
	if err != nil {
		t.Fatalf("Create err:%v", err)
	}
	if acc.Name() != Prefix || acc.Pub()[0] != 'G' || acc.Secret()[0] != 'S' {
		t.Errorf("unexpected account %s %s", acc.Name(), acc.Pub())
	}
	if _, err = Create(password, dir, Prefix); !errors.Is(err, ErrExists) {
		t.Errorf("second Create got %v expected %v", err, ErrExists)
	}

	got, err := Load(password, dir, Prefix)
	if err != nil {
		t.Fatalf("Load err:%v", err)
	}
	if got.Pub() != acc.Pub() || got.Secret() != acc.Secret() {
		t.Errorf("loaded wallet does not match the created one")
	}

	if _, err = Load("wrong", dir, Prefix); !errors.Is(err, pw.ErrDecrypt) {
		t.Errorf("wrong password got %v expected %v", err, pw.ErrDecrypt)
	}
	if _, err = Load(password, dir, "wallet-9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing wallet got %v expected %v", err, ErrNotFound)
	}
	if _, err = Load(password, dir, "../x"); !errors.Is(err, ErrName) {
		t.Errorf("bad name got %v expected %v", err, ErrName)
	}

	fi, err := os.Stat(filepath.Join(dir, Prefix+".json"))
	if err != nil || fi.Mode().Perm() != 0o600 {
		t.Errorf("wallet file should be 0600: %v %v", fi, err)
	}
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	kp, err := keypair.Random()
	if err != nil {
		t.Fatalf("Random err:%v", err)
	}

	acc, err := Import(password, dir, "wallet-1", " "+kp.Seed()+"\n")
	if err != nil {
		t.Fatalf("Import err:%v", err)
	}
	if acc.Pub() != kp.Address() {
		t.Errorf("imported %s expected %s", acc.Pub(), kp.Address())
	}
	if _, err = Import(password, dir, "wallet-2", "SNOTASEED"); !errors.Is(err, ErrSecret) {
		t.Errorf("bad seed got %v expected %v", err, ErrSecret)
	}
	// an address is not a secret
	if _, err = Import(password, dir, "wallet-2", kp.Address()); !errors.Is(err, ErrSecret) {
		t.Errorf("address got %v expected %v", err, ErrSecret)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()

	infos, errs, err := List(filepath.Join(dir, "missing"))
	if err != nil || len(infos) != 0 || len(errs) != 0 {
		t.Errorf("missing dir should list empty: %v %v %v", infos, errs, err)
	}

	if _, err = Create(password, dir, "wallet"); err != nil {
		t.Fatalf("Create err:%v", err)
	}
	if _, err = Create(password, dir, "wallet-2"); err != nil {
		t.Fatalf("Create err:%v", err)
	}
	// noise in the wallet dir
	_ = os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o600)
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o600)
	_ = os.Mkdir(filepath.Join(dir, "sub.json"), 0o700)

	infos, errs, err = List(dir)
	if err != nil {
		t.Fatalf("List err:%v", err)
	}
	if len(infos) != 2 || infos[0].Name != "wallet" || infos[1].Name != "wallet-2" {
		t.Errorf("unexpected wallets %+v", infos)
	}
	if len(errs) != 1 {
		t.Errorf("expected one file error, got %v", errs)
	}
}

func TestSuffix(t *testing.T) {
	cases := []struct {
		name string
		n    int
		ok   bool
	}{
		{"wallet", 0, true},
		{"wallet-1", 1, true},
		{"wallet-17", 17, true},
		{"wallet-0", 0, false},
		{"wallet-", 0, false},
		{"wallet-x", 0, false},
		{"wallet-01", 0, false},
		{"wallet-+1", 0, false},
		{"wallet- 1", 0, false},
		{"wallets", 0, false},
		{"other", 0, false},
	}
	for _, c := range cases {
		if n, ok := Suffix(c.name); n != c.n || ok != c.ok {
			t.Errorf("[%s] got %d,%v expected %d,%v", c.name, n, ok, c.n, c.ok)
		}
	}
}

func TestLatestNextName(t *testing.T) {
	cases := []struct {
		names  []string
		latest string
		next   string
	}{
		{nil, "", "wallet"},
		{[]string{"other"}, "", "wallet"},
		{[]string{"wallet"}, "wallet", "wallet-1"},
		{[]string{"wallet", "wallet-2", "wallet-10", "other"}, "wallet-10", "wallet-11"},
		{[]string{"wallet-3"}, "wallet-3", "wallet-4"},
		{[]string{"wallet-1", "wallet-01", "wallet-+2"}, "wallet-1", "wallet-2"},
	}
	for _, c := range cases {
		infos := make([]Info, 0, len(c.names))
		for _, n := range c.names {
			infos = append(infos, Info{Name: n})
		}
		if got := Latest(infos); got != c.latest {
			t.Errorf("%v: Latest %q expected %q", c.names, got, c.latest)
		}
		if got := NextName(infos); got != c.next {
			t.Errorf("%v: NextName %q expected %q", c.names, got, c.next)
		}
	}
}

func TestLocate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "stellar")

	// nothing there: creates "wallet"
	first, err := Locate(password, dir)
	if err != nil {
		t.Fatalf("Locate err:%v", err)
	}
	if first.Name() != Prefix {
		t.Errorf("created %s expected %s", first.Name(), Prefix)
	}
	// found: loads the same wallet
	again, err := Locate(password, dir)
	if err != nil || again.Pub() != first.Pub() {
		t.Errorf("Locate should load the existing wallet: %v", err)
	}
	// a newer wallet becomes the active one
	newer, err := Create(password, dir, "wallet-1")
	if err != nil {
		t.Fatalf("Create err:%v", err)
	}
	active, err := Locate(password, dir)
	if err != nil || active.Pub() != newer.Pub() {
		t.Errorf("Locate should pick wallet-1: %v", err)
	}
	if _, err = Locate("wrong", dir); err == nil {
		t.Errorf("Locate with a wrong password should fail")
	}
}

func TestChangePassword(t *testing.T) {
	dir := t.TempDir()
	a, _ := Create(password, dir, "wallet")
	b, _ := Create(password, dir, "wallet-1")

	if err := ChangePassword("wrong", "new", dir); !errors.Is(err, pw.ErrDecrypt) {
		t.Errorf("wrong old password got %v expected %v", err, pw.ErrDecrypt)
	}
	// still readable with the old password
	if _, err := Load(password, dir, "wallet"); err != nil {
		t.Errorf("store changed after a failed ChangePassword: %v", err)
	}
	if err := ChangePassword(password, "", dir); !errors.Is(err, pw.ErrEmpty) {
		t.Errorf("empty password got %v expected %v", err, pw.ErrEmpty)
	}

	if err := ChangePassword(password, "new", dir); err != nil {
		t.Fatalf("ChangePassword err:%v", err)
	}
	for _, acc := range []*Account{a, b} {
		got, err := Load("new", dir, acc.Name())
		if err != nil || got.Secret() != acc.Secret() {
			t.Errorf("[%s] not readable with the new password: %v", acc.Name(), err)
		}
		if _, err = Load(password, dir, acc.Name()); err == nil {
			t.Errorf("[%s] still readable with the old password", acc.Name())
		}
	}
	if m, _ := filepath.Glob(filepath.Join(dir, "*.tmp")); len(m) != 0 {
		t.Errorf("temporary files left behind: %v", m)
	}
}

func TestChangePasswordUnreadable(t *testing.T) {
	dir := t.TempDir()
	if _, err := Create(password, dir, "wallet"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "wallet-1.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := ChangePassword(password, "new", dir); !errors.Is(err, ErrBadStore) {
		t.Fatalf("got %v expected %v", err, ErrBadStore)
	}
	// nothing was re-encrypted
	if _, err := Load(password, dir, "wallet"); err != nil {
		t.Errorf("store changed after a failed ChangePassword: %v", err)
	}
	if _, err := Load("new", dir, "wallet"); err == nil {
		t.Errorf("wallet re-encrypted although another one is unreadable")
	}
}
