// Package main: pwsetup saves the password that encrypts the stellar wallets, so the service can start unattended.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/tarancss/stellarsvc/lib/config"
	"github.com/tarancss/stellarsvc/lib/pw"
)

var stdin = bufio.NewReader(os.Stdin) //nolint:gochecknoglobals // shared by both prompts

func main() {
	confPath := flag.String("c", "", "flag to get configuration from json file")
	flag.Parse()

	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fn := conf.PasswordFile()
	if pw.Exists(fn) {
		fmt.Println("Password file already exists")

		return
	}

	p1, err := prompt("Password: ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	p2, err := prompt("Confirm password: ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if p1 != p2 {
		fmt.Fprintln(os.Stderr, "Passwords do not match")
		os.Exit(1)
	}

	if err = pw.Save(fn, conf.PwEnc, p1); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Println("Password saved")
}

// prompt reads a password without echo, or a line when stdin is not a terminal.
func prompt(label string) (string, error) {
	fmt.Print(label)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}

		return strings.TrimRight(line, "\r\n"), nil
	}

	b, err := term.ReadPassword(fd)
	fmt.Println()

	return string(b), err
}
