package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/99designs/keyring"
	"golang.org/x/term"
)

const (
	keyringServiceName  = "io.divertsy.beacon"
	keyringTokenService = "natstoken"
	keyringDirectory    = "~/.beacon_keys"
)

var (
	ErrNoTokenSpecified = errors.New("NATS token location not provided")
	ErrKeyNotFound      = keyring.ErrKeyNotFound
)

type backendType struct {
	config *Config
}

func (b backendType) String() string {
	if b.config == nil || len(b.config.Keyring.AllowedBackends) == 0 {
		return string(keyring.InvalidBackend)
	}
	return string(b.config.Keyring.AllowedBackends[0])
}

func (b backendType) Set(v string) error {
	value := keyring.BackendType(v)
	if b.config == nil {
		return fmt.Errorf("invalid backendType")
	}
	if v == "" {
		return nil
	}
	for _, name := range keyring.AvailableBackends() {
		if name == value {
			b.config.Keyring.AllowedBackends = []keyring.BackendType{name}
			return nil
		}
	}
	return fmt.Errorf("unsupported credential storage")
}

func (c *Config) getPassword(prompt string) (string, error) {
	if c.password != nil && *c.password != "" {
		return *c.password, nil
	}

	var w io.Writer
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fd = int(os.Stderr.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal output available for password prompt")
		}
		w = os.Stderr
	} else {
		w = os.Stdout
	}

	fmt.Fprintf(w, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(w)
	password := string(b)
	c.password = &password
	return password, nil
}

func (c *Config) openKeyring() (keyring.Keyring, error) {
	return keyring.Open(c.Keyring)
}

func (c *Config) tokenKey() string {
	return keyringTokenService + "." + c.NATSTokenName
}

// NATSToken returns the NATS authentication token from c.NATSTokenFile or, if the file does not
// exist, from the system keyring. The token is cached after it is first loaded.
func (c *Config) NATSToken() (string, error) {
	if c.natsToken != "" {
		return c.natsToken, nil
	}
	if c.NATSTokenFile == "" && c.NATSTokenName == "" {
		return "", ErrNoTokenSpecified
	}
	if c.NATSTokenFile != "" {
		token, err := os.ReadFile(c.NATSTokenFile)
		if err == nil {
			c.natsToken = strings.TrimSpace(string(token))
			return c.natsToken, nil
		}
		if !errors.Is(err, os.ErrNotExist) || c.NATSTokenName == "" {
			return "", fmt.Errorf("could not load NATS token: %w", err)
		}
		// If the token file doesn't exist, fall through to trying to load from the system keyring.
	}
	token, err := c.LoadTokenFromKeyring()
	if err != nil {
		return "", err
	}
	c.natsToken = token
	return token, nil
}

// LoadTokenFromKeyring loads the NATS token from the system keyring.
//
// The name must match the value provided to SaveTokenToKeyring.
func (c *Config) LoadTokenFromKeyring() (string, error) {
	kr, err := c.openKeyring()
	if err != nil {
		return "", err
	}
	item, err := kr.Get(c.tokenKey())
	if err != nil {
		return "", fmt.Errorf("could not load NATS token: %w", err)
	}
	return string(item.Data), nil
}

// SaveTokenToKeyring writes token to the system keyring under c.NATSTokenName.
func (c *Config) SaveTokenToKeyring(token string) error {
	if c.NATSTokenName == "" {
		return ErrNoTokenSpecified
	}
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	if err := kr.Set(keyring.Item{
		Key:  c.tokenKey(),
		Data: []byte(token),
	}); err != nil {
		return fmt.Errorf("failed to enroll token in keyring: %w", err)
	}
	c.natsToken = token
	return nil
}

// DeleteTokenFromKeyring removes the NATS token from the system keyring.
func (c *Config) DeleteTokenFromKeyring() error {
	if c.NATSTokenName == "" {
		return ErrNoTokenSpecified
	}
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	if err := kr.Remove(c.tokenKey()); err != nil {
		return fmt.Errorf("failed to remove token from keyring: %w", err)
	}
	c.natsToken = ""
	return nil
}
