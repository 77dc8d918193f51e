// Command pqportal registers principals, logs in with challenge-response
// signatures and seals messages to KEM public keys.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	pqportal "github.com/pqportal/client-go"
	"github.com/pqportal/client-go/internal/config"
	"github.com/pqportal/client-go/internal/crypto"
	"github.com/pqportal/client-go/internal/privacylog"
	"github.com/pqportal/client-go/keystore"
)

const usage = `usage: pqportal [flags] <command> [args]

commands:
  register <principal>     generate a keypair and register its public key
  resume <principal>       resubmit the stored key after a failed registration
  login <principal>        authenticate with the stored key
  forget <principal>       delete the stored key
  principals               list principals with stored keys
  kem-keygen <key-file>    write a new KEM secret key to key-file, print the public key
  seal <public-key>        encrypt stdin to a recipient public key
  open <key-file>          decrypt a sealed envelope read from stdin`

// Config holds the I/O streams of a run.
type Config struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultConfig returns a Config bound to the process streams.
func DefaultConfig() *Config {
	return &Config{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// PortalClient is the subset of *pqportal.Client the commands use.
type PortalClient interface {
	Register(ctx context.Context, principalID string) (*pqportal.Registration, error)
	ResumeRegistration(ctx context.Context, principalID string) (*pqportal.Registration, error)
	Login(ctx context.Context, principalID string) (*pqportal.Session, error)
	RemoveKey(principalID string) error
	KeyStore() *keystore.Store
	Binding() *pqportal.Binding
	GenerateKEMKeyPair() (*pqportal.KeyPair, error)
	Encapsulate(recipientPublicKey []byte) ([]byte, *pqportal.SharedKey, error)
	Decapsulate(ciphertext, secretKey []byte) (*pqportal.SharedKey, error)
	Close() error
}

var _ PortalClient = (*pqportal.Client)(nil)

// clientFactory builds the client from the loaded configuration.
var clientFactory = func(cfg config.Config, logger *slog.Logger) (PortalClient, error) {
	binding := pqportal.NewBinding(
		pqportal.WithSignatureScheme(cfg.Crypto.SignatureScheme),
		pqportal.WithKEMScheme(cfg.Crypto.KEMScheme),
	)
	if err := binding.Init(); err != nil {
		return nil, err
	}

	backend, err := keystore.OpenBackend(cfg.Client.KeyStore, cfg.Client.KeyStoreConfig())
	if err != nil {
		return nil, err
	}
	store, err := keystore.New(backend, binding.Sizes().SignatureSecretKey, keystore.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	var httpOpts []pqportal.HTTPOption
	if cfg.Client.Timeout > 0 {
		httpOpts = append(httpOpts, pqportal.WithTimeout(cfg.Client.Timeout))
	}
	if cfg.Client.Retries != nil {
		httpOpts = append(httpOpts, pqportal.WithRetries(*cfg.Client.Retries))
	}
	identity, err := pqportal.NewHTTPIdentityService(cfg.Client.ServiceURL, httpOpts...)
	if err != nil {
		return nil, err
	}

	return pqportal.New(identity,
		pqportal.WithBinding(binding),
		pqportal.WithKeyStore(store),
		pqportal.WithLogger(logger),
		pqportal.WithVerificationTimeout(cfg.Client.VerificationTimeout),
		pqportal.WithSessionTTL(cfg.Client.SessionTTL),
	)
}

// exitFunc is replaced in tests.
var exitFunc = os.Exit

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	exitFunc(1)
}

func run(args []string, cfg *Config) error {
	if cfg.Stderr == nil {
		cfg.Stderr = io.Discard
	}
	fs := flag.NewFlagSet("pqportal", flag.ContinueOnError)
	fs.SetOutput(cfg.Stderr)
	fs.Usage = func() { fmt.Fprintln(cfg.Stderr, usage) }
	configPath := fs.String("config", "", "path to pqportal.yaml (optional)")
	envFile := fs.String("env", ".env", "dotenv file to load (optional)")
	serviceURL := fs.String("service-url", "", "identity service URL override")
	store := fs.String("keystore", "", "key store backend override: "+fmt.Sprint(keystore.Backends()))
	keyDir := fs.String("key-dir", "", "key directory override for the file backend")
	logLevel := fs.String("log-level", "", "log level override")
	timeout := fs.Duration("timeout", 2*time.Minute, "overall command timeout")

	var rest []string
	if len(args) > 1 {
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		rest = fs.Args()
	}
	if len(rest) == 0 {
		return errors.New(usage)
	}

	settings, err := config.Load(*configPath, *envFile)
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "service-url":
			settings.Client.ServiceURL = *serviceURL
		case "keystore":
			settings.Client.KeyStore = *store
		case "key-dir":
			settings.Client.KeyDir = *keyDir
		case "log-level":
			settings.Log.Level = *logLevel
		}
	})
	if err := settings.Validate(); err != nil {
		return err
	}

	logger := privacylog.New(cfg.Stderr, privacylog.ParseLevel(settings.Log.Level), settings.Log.Format)
	client, err := clientFactory(settings, logger)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	cmd, cmdArgs := rest[0], rest[1:]
	needArg := func(name string) (string, error) {
		if len(cmdArgs) < 1 {
			return "", fmt.Errorf("usage: pqportal %s <%s>", cmd, name)
		}
		return cmdArgs[0], nil
	}

	switch cmd {
	case "register", "resume", "login", "forget":
		principal, err := needArg("principal")
		if err != nil {
			return err
		}
		switch cmd {
		case "register":
			return runRegister(ctx, client, cfg, principal, false)
		case "resume":
			return runRegister(ctx, client, cfg, principal, true)
		case "login":
			return runLogin(ctx, client, cfg, principal)
		default:
			return runForget(client, cfg, principal)
		}
	case "principals":
		return runPrincipals(client, cfg)
	case "kem-keygen":
		path, err := needArg("key-file")
		if err != nil {
			return err
		}
		return runKEMKeygen(client, cfg, path)
	case "seal":
		pub, err := needArg("public-key")
		if err != nil {
			return err
		}
		return runSeal(client, cfg, pub)
	case "open":
		path, err := needArg("key-file")
		if err != nil {
			return err
		}
		return runOpen(client, cfg, path)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// RegistrationOutput is printed by register and resume.
type RegistrationOutput struct {
	PrincipalID string `json:"principal_id"`
	Algorithm   string `json:"algorithm"`
	PublicKey   string `json:"public_key"`
	Status      string `json:"status"`
}

// SessionOutput is printed by login.
type SessionOutput struct {
	PrincipalID  string    `json:"principal_id"`
	Status       string    `json:"status"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionToken string    `json:"session_token,omitempty"`
}

// KEMKeyPairOutput is printed by kem-keygen.
type KEMKeyPairOutput struct {
	Algorithm string `json:"algorithm"`
	PublicKey string `json:"public_key"`
	KeyFile   string `json:"key_file"`
}

// Envelope is the output of seal and the input of open.
type Envelope struct {
	Ciphertext string `json:"ciphertext"`
	Sealed     string `json:"sealed"`
}

func runRegister(ctx context.Context, client PortalClient, cfg *Config, principal string, resume bool) error {
	register := client.Register
	if resume {
		register = client.ResumeRegistration
	}
	reg, err := register(ctx, principal)
	if err != nil {
		if errors.Is(err, pqportal.ErrKeyExists) {
			return fmt.Errorf("register: %w (resubmit with: pqportal resume %s, or remove it with: pqportal forget %s)", err, principal, principal)
		}
		if pqportal.IsTransient(err) {
			return fmt.Errorf("register: %w (key kept, retry with: pqportal resume %s)", err, principal)
		}
		return fmt.Errorf("register: %w", err)
	}
	return writeJSON(cfg.Stdout, RegistrationOutput{
		PrincipalID: reg.PrincipalID,
		Algorithm:   reg.Algorithm,
		PublicKey:   crypto.ToBase64URL(reg.PublicKey),
		Status:      reg.Status.String(),
	})
}

func runLogin(ctx context.Context, client PortalClient, cfg *Config, principal string) error {
	sess, err := client.Login(ctx, principal)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return writeJSON(cfg.Stdout, SessionOutput{
		PrincipalID:  sess.PrincipalID,
		Status:       sess.Status().String(),
		ExpiresAt:    sess.ExpiresAt,
		SessionToken: sess.Token(),
	})
}

func runForget(client PortalClient, cfg *Config, principal string) error {
	if err := client.RemoveKey(principal); err != nil {
		return fmt.Errorf("forget: %w", err)
	}
	return writeJSON(cfg.Stdout, map[string]string{"principal_id": principal, "status": "removed"})
}

func runPrincipals(client PortalClient, cfg *Config) error {
	ids, err := client.KeyStore().Principals()
	if err != nil {
		return fmt.Errorf("list principals: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return writeJSON(cfg.Stdout, ids)
}

// runKEMKeygen writes the secret key to a new owner-only file so it never
// passes through stdout or argv.
func runKEMKeygen(client PortalClient, cfg *Config, path string) error {
	kp, err := client.GenerateKEMKeyPair()
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	defer kp.Destroy()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create key file: %w", err)
	}
	encoded := []byte(crypto.ToBase64URL(kp.SecretKey) + "\n")
	defer crypto.Zeroize(encoded)
	if _, err := f.Write(encoded); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("write key file: %w", err)
	}

	return writeJSON(cfg.Stdout, KEMKeyPairOutput{
		Algorithm: kp.Algorithm.String(),
		PublicKey: crypto.ToBase64URL(kp.PublicKey),
		KeyFile:   path,
	})
}

func runSeal(client PortalClient, cfg *Config, publicKey string) error {
	pub, err := crypto.DecodeSized(publicKey, client.Binding().Sizes().KEMPublicKey)
	if err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	plaintext, err := io.ReadAll(cfg.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	ct, key, err := client.Encapsulate(pub)
	if err != nil {
		return fmt.Errorf("encapsulate: %w", err)
	}
	defer key.Destroy()
	sealed, err := key.Seal(plaintext, nil)
	if err != nil {
		return fmt.Errorf("seal: %w", err)
	}
	return writeJSON(cfg.Stdout, Envelope{
		Ciphertext: crypto.ToBase64URL(ct),
		Sealed:     crypto.ToBase64URL(sealed),
	})
}

func runOpen(client PortalClient, cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read key file: %w", err)
	}
	defer crypto.Zeroize(raw)
	sizes := client.Binding().Sizes()
	sec, err := crypto.DecodeSized(string(bytes.TrimSpace(raw)), sizes.KEMSecretKey)
	if err != nil {
		return fmt.Errorf("decode secret key: %w", err)
	}
	defer crypto.Zeroize(sec)

	var env Envelope
	if err := json.NewDecoder(cfg.Stdin).Decode(&env); err != nil {
		return fmt.Errorf("parse envelope: %w", err)
	}
	ct, err := crypto.DecodeSized(env.Ciphertext, sizes.KEMCiphertext)
	if err != nil {
		return fmt.Errorf("decode ciphertext: %w", err)
	}
	sealed, err := crypto.DecodeBase64(env.Sealed)
	if err != nil {
		return fmt.Errorf("decode sealed: %w", err)
	}

	key, err := client.Decapsulate(ct, sec)
	if err != nil {
		return fmt.Errorf("decapsulate: %w", err)
	}
	defer key.Destroy()
	plaintext, err := key.Open(sealed, nil)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	_, err = cfg.Stdout.Write(plaintext)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
