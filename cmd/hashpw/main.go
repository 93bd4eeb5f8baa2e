// Command hashpw prints a bcrypt hash for a password, in the form users.yml
// expects. On a terminal the password is prompted for without echo, otherwise
// the first line of stdin is used.
//
//	hashpw -user admin >> users.yml
//	echo -n 'secret' | hashpw
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

func main() {
	user := flag.String("user", "", "print a users.yml line for this username instead of the bare hash")
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost (4..31)")
	flag.Parse()

	var in io.Reader = os.Stdin
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fmt.Fprintln(os.Stderr, "hashpw: read password:", err)
			os.Exit(1)
		}
		in = strings.NewReader(string(pw))
	}

	line, err := hashLine(in, *user, *cost)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hashpw:", err)
		os.Exit(1)
	}
	fmt.Println(line)
}

// hashLine reads one password line from r and returns its hash, prefixed with
// "user: " when user is set.
func hashLine(r io.Reader, user string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", xerrors.Newf("cost %d out of range %d..%d", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if strings.ContainsAny(user, ":#\n") || strings.TrimSpace(user) != user {
		return "", xerrors.Newf("username %q cannot be written to users.yml", user)
	}

	pw, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", xerrors.Wrap(err, "read password")
	}
	pw = strings.TrimRight(pw, "\r\n")
	if pw == "" {
		return "", xerrors.New("empty password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", xerrors.Wrap(err, "hash password")
	}
	if user == "" {
		return string(hash), nil
	}
	return fmt.Sprintf("%s: %s", user, hash), nil
}
