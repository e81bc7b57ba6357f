package discovery

import (
	"log/slog"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// NewSourceWithoutClient builds a source whose listing and watch stream are
// fed by the test instead of an etcd client.
func NewSourceWithoutClient(prefix string, logger *slog.Logger) *EtcdSource {
	return &EtcdSource{
		prefix:  prefix,
		catalog: NewCatalog(prefix),
		logger:  logger,
	}
}

func (s *EtcdSource) Load(kvs []*mvccpb.KeyValue, syncer Syncer) {
	s.load(kvs, syncer)
}

func (s *EtcdSource) Follow(watch clientv3.WatchChan, syncer Syncer) error {
	return s.follow(watch, syncer)
}
