package keystore

import (
	"log"
	"strconv"
	"strings"
)

// Suffix returns the numeric suffix of a wallet name: 0 for "wallet", n for "wallet-<n>". ok is false for names not
// following the convention, including non canonical numbers such as "wallet-01".
func Suffix(name string) (n int, ok bool) {
	if name == Prefix {
		return 0, true
	}
	if !strings.HasPrefix(name, Prefix+"-") {
		return 0, false
	}
	suffix := name[len(Prefix)+1:]
	n, err := strconv.Atoi(suffix)
	if err != nil || n <= 0 || strconv.Itoa(n) != suffix {
		return 0, false
	}
	return n, true
}

// Latest returns the name of the most recent wallet in infos or "" if none follows the naming convention.
func Latest(infos []Info) string {
	name, max := "", -1
	for _, i := range infos {
		if n, ok := Suffix(i.Name); ok && n > max {
			name, max = i.Name, n
		}
	}
	return name
}

// NextName returns the name for a new wallet that will become the most recent one.
func NextName(infos []Info) string {
	if Latest(infos) == "" {
		return Prefix
	}
	max := 0
	for _, i := range infos {
		if n, ok := Suffix(i.Name); ok && n > max {
			max = n
		}
	}
	return Prefix + "-" + strconv.Itoa(max+1)
}

// Locate lists the wallets in dir and loads the most recent one, creating the first wallet when there is none.
// Problems with other files in the directory are only logged.
func Locate(password, dir string) (*Account, error) {
	infos, errs, err := List(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range errs {
		log.Printf("[keystore] %v", e)
	}
	name := Latest(infos)
	if name == "" {
		log.Printf("[keystore] No wallet found in %s, creating %q", dir, Prefix)
		return Create(password, dir, Prefix)
	}
	return Load(password, dir, name)
}
