package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"flag"
	"math/big"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/media"
	"github.com/StoreStation/eeland/pkg/serverproto"
	"github.com/StoreStation/eeland/pkg/store"
	"github.com/StoreStation/eeland/pkg/transport"
)

func main() {
	address := flag.String("address", ":14191", "UDP address to listen on")
	dbPath := flag.String("db", "eeland.sqlite", "path to the SQLite database file (use :memory: for an ephemeral server)")
	assetsDir := flag.String("assets", "assets", "directory served for AssetQuery/media requests")
	maxPeers := flag.Int("max-peers", 256, "maximum concurrent connections")
	dev := flag.Bool("dev", false, "use a human-readable development logger instead of JSON")
	flag.Parse()

	log, err := newLogger(*dev)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(*address, *dbPath, *assetsDir, *maxPeers, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(address, dbPath, assetsDir string, maxPeers int, log *zap.Logger) error {
	blockMgr := blocks.NewManager()
	if err := blockMgr.DoPackRegistration(); err != nil {
		return err
	}
	blockMgr.DoPackPostprocess()

	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	worldStore, err := store.NewWorldStore(db)
	if err != nil {
		return err
	}
	authStore, err := store.NewAuthStore(db)
	if err != nil {
		return err
	}
	friendStore, err := store.NewFriendStore(db)
	if err != nil {
		return err
	}
	banStore, err := store.NewBanStore(db)
	if err != nil {
		return err
	}
	configStore, err := store.NewConfigStore(db)
	if err != nil {
		return err
	}

	mediaMgr := media.NewManager(assetsDir, log.Named("media"))
	if err := mediaMgr.IndexAssets(); err != nil {
		log.Warn("asset indexing failed, continuing with whatever was found", zap.Error(err))
	}

	tp := transport.New(transport.RoleServer, maxPeers, log.Named("transport"))

	cert, err := selfSignedCert()
	if err != nil {
		return err
	}
	serverTLS := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"eeland"},
	}
	if err := tp.ListenServer(address, serverTLS); err != nil {
		return err
	}

	dispatcher := serverproto.New(blockMgr, worldStore, authStore, friendStore, mediaMgr, tp, log.Named("dispatch"))
	dispatcher.Bans = banStore
	dispatcher.Config = configStore

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	tp.ListenAsync(ctx, dispatcher)

	stop := make(chan struct{})
	go dispatcher.Run(stop)
	defer close(stop)

	log.Info("server listening", zap.String("address", address), zap.String("db", dbPath))

	<-ctx.Done()
	log.Info("shutting down")

	tp.Close()
	return nil
}

// selfSignedCert mints an ephemeral ECDSA certificate for the QUIC
// listener. No example repo in the retrieval pack ships a TLS bootstrap
// helper (transport.tlsConfig's client side already skips verification
// entirely, per pkg/transport/transport.go), so this is stdlib
// crypto/tls plumbing rather than anything grounded on the corpus.
func selfSignedCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return tls.Certificate{}, err
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"eeland"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
