// Package seed loads clients and users from a YAML file into a store.
//
// A seed file looks like:
//
//	clients:
//	  - id: default-client
//	    name: Web UI
//	    type: public
//	    default: true
//	    redirect_uris: [http://localhost/callback]
//	    scopes: [openid, profile, email]
//	    grant_types: [authorization_code, refresh_token]
//	  - id: billing
//	    type: confidential
//	    secret: s3cret
//	    scopes: [invoices:read]
//	    grant_types: [client_credentials]
//	users:
//	  - id: user-1
//	    username: alice
//	    password: wonderland
//	    email: alice@example.com
//
// Plaintext secrets and passwords are bcrypt-hashed when applied; records may
// carry secret_hash or password_hash instead.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/storage"
)

// Errors returned while loading a seed file.
var (
	ErrFileNotFound = errors.New("seed file not found")
	ErrEmptyFile    = errors.New("seed file is empty")
	ErrInvalidYAML  = errors.New("invalid YAML syntax")
	ErrInvalid      = errors.New("invalid seed")
)

// File is the parsed seed file.
type File struct {
	Clients []Client `yaml:"clients"`
	Users   []User   `yaml:"users"`
}

// Client is a client entry of the seed file.
type Client struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Type            string   `yaml:"type"`
	Secret          string   `yaml:"secret"`
	SecretHash      string   `yaml:"secret_hash"`
	RedirectURIs    []string `yaml:"redirect_uris"`
	Scopes          []string `yaml:"scopes"`
	GrantTypes      []string `yaml:"grant_types"`
	AccessTokenTTL  int64    `yaml:"access_token_ttl"`
	RefreshTokenTTL int64    `yaml:"refresh_token_ttl"`
	Default         bool     `yaml:"default"`
	ConsentRequired bool     `yaml:"consent_required"`
}

// User is a user entry of the seed file. Active defaults to true.
type User struct {
	ID           string `yaml:"id"`
	Username     string `yaml:"username"`
	Email        string `yaml:"email"`
	FirstName    string `yaml:"first_name"`
	LastName     string `yaml:"last_name"`
	Active       *bool  `yaml:"active"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

// Store is the part of storage.Store the seed writes to.
type Store interface {
	SaveClient(ctx context.Context, client *storage.Client) error
	SaveUser(ctx context.Context, user *storage.User) error
}

// Result counts the records written by Apply.
type Result struct {
	Clients int
	Users   int
}

// Load reads and validates the seed file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	return Parse(data)
}

// Parse decodes and validates seed YAML. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks required fields, client types and uniqueness.
func (f *File) Validate() error {
	clientIDs := make(map[string]bool, len(f.Clients))
	defaults := 0
	for i, c := range f.Clients {
		if c.ID == "" {
			return fmt.Errorf("%w: clients[%d]: id is required", ErrInvalid, i)
		}
		if clientIDs[c.ID] {
			return fmt.Errorf("%w: duplicate client id %q", ErrInvalid, c.ID)
		}
		clientIDs[c.ID] = true

		switch c.clientType() {
		case storage.ClientTypePublic:
			if c.Secret != "" || c.SecretHash != "" {
				return fmt.Errorf("%w: public client %q must not have a secret", ErrInvalid, c.ID)
			}
		case storage.ClientTypeConfidential:
			if c.Secret == "" && c.SecretHash == "" {
				return fmt.Errorf("%w: confidential client %q needs secret or secret_hash", ErrInvalid, c.ID)
			}
		default:
			return fmt.Errorf("%w: client %q has unknown type %q", ErrInvalid, c.ID, c.Type)
		}
		if len(c.GrantTypes) == 0 {
			return fmt.Errorf("%w: client %q has no grant_types", ErrInvalid, c.ID)
		}
		if c.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("%w: %d clients are marked default, at most one may be", ErrInvalid, defaults)
	}

	userIDs := make(map[string]bool, len(f.Users))
	usernames := make(map[string]bool, len(f.Users))
	for i, u := range f.Users {
		if u.ID == "" || u.Username == "" {
			return fmt.Errorf("%w: users[%d]: id and username are required", ErrInvalid, i)
		}
		if userIDs[u.ID] {
			return fmt.Errorf("%w: duplicate user id %q", ErrInvalid, u.ID)
		}
		if usernames[u.Username] {
			return fmt.Errorf("%w: duplicate username %q", ErrInvalid, u.Username)
		}
		userIDs[u.ID] = true
		usernames[u.Username] = true
	}
	return nil
}

// Apply writes every client and user of f to store, replacing existing
// records with the same ID. now stamps new clients' CreatedAt.
func Apply(ctx context.Context, store Store, f *File, now time.Time) (Result, error) {
	var res Result
	for _, c := range f.Clients {
		client, err := c.toStorage(now)
		if err != nil {
			return res, err
		}
		if err := store.SaveClient(ctx, client); err != nil {
			return res, fmt.Errorf("failed to save client %q: %w", c.ID, err)
		}
		res.Clients++
	}
	for _, u := range f.Users {
		user, err := u.toStorage()
		if err != nil {
			return res, err
		}
		if err := store.SaveUser(ctx, user); err != nil {
			return res, fmt.Errorf("failed to save user %q: %w", u.ID, err)
		}
		res.Users++
	}
	return res, nil
}

// LoadAndApply loads the file at path and applies it to store.
func LoadAndApply(ctx context.Context, store Store, path string) (Result, error) {
	f, err := Load(path)
	if err != nil {
		return Result{}, err
	}
	return Apply(ctx, store, f, time.Now())
}

func (c Client) clientType() string {
	if c.Type == "" {
		return storage.ClientTypeConfidential
	}
	return c.Type
}

func (c Client) toStorage(now time.Time) (*storage.Client, error) {
	hash := c.SecretHash
	if c.Secret != "" {
		h, err := security.HashSecret(c.Secret)
		if err != nil {
			return nil, fmt.Errorf("client %q: %w", c.ID, err)
		}
		hash = h
	}
	name := c.Name
	if name == "" {
		name = c.ID
	}
	return &storage.Client{
		ClientID:         c.ID,
		ClientName:       name,
		ClientType:       c.clientType(),
		ClientSecretHash: hash,
		RedirectURIs:     c.RedirectURIs,
		Scopes:           c.Scopes,
		GrantTypes:       c.GrantTypes,
		AccessTokenTTL:   c.AccessTokenTTL,
		RefreshTokenTTL:  c.RefreshTokenTTL,
		IsDefault:        c.Default,
		ConsentRequired:  c.ConsentRequired,
		CreatedAt:        now,
	}, nil
}

func (u User) toStorage() (*storage.User, error) {
	hash := u.PasswordHash
	if u.Password != "" {
		h, err := security.HashSecret(u.Password)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", u.ID, err)
		}
		hash = h
	}
	active := true
	if u.Active != nil {
		active = *u.Active
	}
	return &storage.User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Active:       active,
		PasswordHash: hash,
	}, nil
}
