package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/angeloszaimis/serverpool/internal/backend"
)

// Syncer reconciles the pool with a desired set of servers.
type Syncer interface {
	Sync(specs []backend.Spec) error
}

// EtcdSource keeps the pool in line with the servers published in etcd.
//
//	Key:   {prefix}{address}
//	Value: {"address": "...", "capacity": N} or empty
type EtcdSource struct {
	client  *clientv3.Client
	prefix  string
	catalog *Catalog
	logger  *slog.Logger
}

func NewEtcdSource(endpoints []string, prefix string, dialTimeout time.Duration, logger *slog.Logger) (*EtcdSource, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to etcd: %w", err)
	}

	return &EtcdSource{
		client:  client,
		prefix:  prefix,
		catalog: NewCatalog(prefix),
		logger:  logger,
	}, nil
}

// Run loads the current servers, then follows changes until ctx is cancelled.
// Every change triggers a Sync with the full catalog.
func (s *EtcdSource) Run(ctx context.Context, syncer Syncer) error {
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("list %q: %w", s.prefix, err)
	}
	s.load(resp.Kvs, syncer)

	watch := s.client.Watch(ctx, s.prefix, clientv3.WithPrefix(), clientv3.WithRev(resp.Header.Revision+1))
	if err := s.follow(watch, syncer); err != nil {
		return err
	}
	return ctx.Err()
}

// load replaces the catalog with a full listing and syncs once.
func (s *EtcdSource) load(kvs []*mvccpb.KeyValue, syncer Syncer) {
	s.catalog.Reset()
	for _, kv := range kvs {
		if err := s.catalog.Put(string(kv.Key), kv.Value); err != nil {
			s.logger.Warn("Skipping discovery entry", slog.Any("err", err))
		}
	}
	s.sync(syncer)
}

// follow applies watch batches until the channel closes or reports an error.
func (s *EtcdSource) follow(watch clientv3.WatchChan, syncer Syncer) error {
	for wresp := range watch {
		if err := wresp.Err(); err != nil {
			return fmt.Errorf("watch %q: %w", s.prefix, err)
		}
		if err := s.catalog.Apply(wresp.Events); err != nil {
			s.logger.Warn("Skipping discovery entries", slog.Any("err", err))
		}
		s.sync(syncer)
	}
	return nil
}

func (s *EtcdSource) Close() error {
	return s.client.Close()
}

func (s *EtcdSource) sync(syncer Syncer) {
	specs := s.catalog.Specs()
	if err := syncer.Sync(specs); err != nil {
		s.logger.Warn("Discovery sync incomplete",
			slog.Int("servers", len(specs)),
			slog.Any("err", err))
		return
	}
	s.logger.Info("Discovery sync complete", slog.Int("servers", len(specs)))
}
