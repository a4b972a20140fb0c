// Package keystore keeps the avatar's Stellar key pairs encrypted on disk.
//
// Each wallet is a JSON file <dir>/<name>.json holding the public key in clear and the secret seed sealed with the
// wallet password (see package pw for the scheme). The active wallet is located by name: "wallet" or "wallet-<n>",
// the highest n being the most recent one.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/stellar/go/keypair"

	"github.com/tarancss/stellarsvc/lib/pw"
)

// Prefix is the name of the first wallet and the prefix of the following ones.
const Prefix = "wallet"

const ext = ".json"

// Errors returned.
var (
	ErrNotFound = errors.New("wallet not found")
	ErrExists   = errors.New("wallet already exists")
	ErrSecret   = errors.New("invalid stellar secret seed")
	ErrName     = errors.New("invalid wallet name")
	ErrBadStore = errors.New("unreadable wallet files")
)

// File is the content of a wallet file.
type File struct {
	Name    string `json:"name"`
	Pub     string `json:"pub"`
	Salt    string `json:"salt"`
	Nonce   string `json:"nonce"`
	Secret  string `json:"secret"`
	Created int64  `json:"created"`
}

// Info describes a wallet without decrypting it.
type Info struct {
	Name    string
	Pub     string
	Created time.Time
}

// Account is a loaded (decrypted) wallet.
type Account struct {
	name string
	kp   *keypair.Full
}

// Name returns the wallet name.
func (a *Account) Name() string { return a.name }

// Pub returns the account public key (G...).
func (a *Account) Pub() string { return a.kp.Address() }

// Secret returns the secret seed (S...).
func (a *Account) Secret() string { return a.kp.Seed() }

// KeyPair returns the signing key pair.
func (a *Account) KeyPair() *keypair.Full { return a.kp }

func path(dir, name string) string {
	return filepath.Join(dir, name+ext)
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && name != "." && name != ".."
}

// List returns the wallets found in dir. Problems with single files are returned in errs and do not fail the
// listing. A missing directory has no wallets.
func List(dir string) (infos []Info, errs []error, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("cannot list wallets in %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		f, errR := read(filepath.Join(dir, e.Name()))
		if errR != nil {
			errs = append(errs, errR)
			continue
		}
		if f.Name != strings.TrimSuffix(e.Name(), ext) {
			errs = append(errs, fmt.Errorf("wallet %s is named %q", e.Name(), f.Name))
			continue
		}
		infos = append(infos, Info{Name: f.Name, Pub: f.Pub, Created: time.Unix(f.Created, 0)})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, errs, nil
}

func read(filename string) (File, error) {
	var f File
	data, err := os.ReadFile(filename)
	if err != nil {
		return f, fmt.Errorf("cannot read wallet %s: %w", filename, err)
	}
	if err = json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("cannot decode wallet %s: %w", filename, err)
	}
	if f.Name == "" || f.Pub == "" || f.Secret == "" {
		return f, fmt.Errorf("cannot decode wallet %s: missing fields", filename)
	}
	return f, nil
}

func writeTmp(dir string, f File) (string, error) {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", fmt.Errorf("cannot encode wallet %s: %w", f.Name, err)
	}
	tmp := path(dir, f.Name) + ".tmp"
	if err = os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("cannot write wallet %s: %w", f.Name, err)
	}
	return tmp, nil
}

func write(dir string, f File) error {
	tmp, err := writeTmp(dir, f)
	if err != nil {
		return err
	}
	return os.Rename(tmp, path(dir, f.Name))
}

func seal(password, name string, kp *keypair.Full) (File, error) {
	f := File{Name: name, Pub: kp.Address(), Created: time.Now().Unix()}
	var err error
	if f.Salt, f.Nonce, f.Secret, err = pw.Seal([]byte(kp.Seed()), password); err != nil {
		return f, err
	}
	return f, nil
}

func save(password, dir, name string, kp *keypair.Full) (*Account, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrName, name)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create wallet dir %s: %w", dir, err)
	}
	if _, err := os.Stat(path(dir, name)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	f, err := seal(password, name, kp)
	if err != nil {
		return nil, err
	}
	if err = write(dir, f); err != nil {
		return nil, err
	}
	return &Account{name: name, kp: kp}, nil
}

// Create generates a new key pair and saves it as wallet name.
func Create(password, dir, name string) (*Account, error) {
	kp, err := keypair.Random()
	if err != nil {
		return nil, fmt.Errorf("cannot generate key pair: %w", err)
	}
	return save(password, dir, name, kp)
}

// Import saves the key pair of the given secret seed as wallet name.
func Import(password, dir, name, secret string) (*Account, error) {
	kp, err := keypair.ParseFull(strings.TrimSpace(secret))
	if err != nil {
		return nil, ErrSecret
	}
	return save(password, dir, name, kp)
}

// Load decrypts wallet name.
func Load(password, dir, name string) (*Account, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrName, name)
	}
	f, err := read(path(dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	seed, err := pw.Open(f.Salt, f.Nonce, f.Secret, password)
	if err != nil {
		return nil, fmt.Errorf("cannot open wallet %s: %w", name, err)
	}
	kp, err := keypair.ParseFull(string(seed))
	if err != nil {
		return nil, fmt.Errorf("cannot open wallet %s: %w", name, ErrSecret)
	}
	if kp.Address() != f.Pub {
		return nil, fmt.Errorf("cannot open wallet %s: public key mismatch", name)
	}
	return &Account{name: name, kp: kp}, nil
}

// ChangePassword re-encrypts every wallet in dir with newpw. A wrong oldpw or an unreadable wallet leaves the store
// untouched.
func ChangePassword(oldpw, newpw, dir string) error {
	if newpw == "" {
		return pw.ErrEmpty
	}
	infos, errs, err := List(dir)
	if err != nil {
		return err
	}
	if len(errs) != 0 {
		return fmt.Errorf("%w in %s: %w", ErrBadStore, dir, errors.Join(errs...))
	}
	files := make([]File, 0, len(infos))
	for _, i := range infos {
		acc, err := Load(oldpw, dir, i.Name)
		if err != nil {
			return err
		}
		f, err := seal(newpw, i.Name, acc.kp)
		if err != nil {
			return err
		}
		f.Created = i.Created.Unix()
		files = append(files, f)
	}
	tmps := make([]string, 0, len(files))
	defer func() {
		for _, tmp := range tmps {
			_ = os.Remove(tmp)
		}
	}()
	for _, f := range files {
		tmp, err := writeTmp(dir, f)
		if err != nil {
			return err
		}
		tmps = append(tmps, tmp)
	}
	for i, f := range files {
		if err = os.Rename(tmps[i], path(dir, f.Name)); err != nil {
			return fmt.Errorf("cannot write wallet %s: %w", f.Name, err)
		}
	}
	return nil
}
