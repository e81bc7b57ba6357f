package discovery_test

import (
	"errors"
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/angeloszaimis/serverpool/internal/backend"
	"github.com/angeloszaimis/serverpool/internal/discovery"
)

type recordingSyncer struct {
	calls [][]backend.Spec
	err   error
}

func (r *recordingSyncer) Sync(specs []backend.Spec) error {
	r.calls = append(r.calls, specs)
	return r.err
}

func (r *recordingSyncer) last() []backend.Spec {
	return r.calls[len(r.calls)-1]
}

func kv(key, value string) *mvccpb.KeyValue {
	return &mvccpb.KeyValue{Key: []byte(key), Value: []byte(value)}
}

var _ = Describe("EtcdSource", func() {
	var (
		source *discovery.EtcdSource
		syncer *recordingSyncer
		watch  chan clientv3.WatchResponse
	)

	BeforeEach(func() {
		source = discovery.NewSourceWithoutClient(prefix, slog.New(slog.NewTextHandler(io.Discard, nil)))
		syncer = &recordingSyncer{}
		watch = make(chan clientv3.WatchResponse, 8)
	})

	It("should sync the initial listing once", func() {
		source.Load([]*mvccpb.KeyValue{
			kv(prefix+"10.0.0.2:80", ""),
			kv(prefix+"10.0.0.1:80", `{"capacity":3}`),
		}, syncer)

		Expect(syncer.calls).To(HaveLen(1))
		Expect(syncer.last()).To(Equal([]backend.Spec{
			{Address: "10.0.0.1:80", Capacity: 3},
			{Address: "10.0.0.2:80"},
		}))
	})

	It("should skip invalid entries in the listing", func() {
		source.Load([]*mvccpb.KeyValue{
			kv(prefix+"10.0.0.1:80", ""),
			kv(prefix+"bad", "{not json"),
		}, syncer)

		Expect(syncer.last()).To(Equal([]backend.Spec{{Address: "10.0.0.1:80"}}))
	})

	It("should resync with the full catalog after every watch batch", func() {
		source.Load([]*mvccpb.KeyValue{kv(prefix+"10.0.0.1:80", "")}, syncer)

		watch <- clientv3.WatchResponse{Events: []*clientv3.Event{
			put(prefix+"10.0.0.2:80", ""),
			put(prefix+"10.0.0.3:80", `{"capacity":2}`),
		}}
		watch <- clientv3.WatchResponse{Events: []*clientv3.Event{
			del(prefix + "10.0.0.1:80"),
		}}
		close(watch)

		Expect(source.Follow(watch, syncer)).To(Succeed())

		Expect(syncer.calls).To(HaveLen(3))
		Expect(syncer.calls[1]).To(Equal([]backend.Spec{
			{Address: "10.0.0.1:80"},
			{Address: "10.0.0.2:80"},
			{Address: "10.0.0.3:80", Capacity: 2},
		}))
		Expect(syncer.last()).To(Equal([]backend.Spec{
			{Address: "10.0.0.2:80"},
			{Address: "10.0.0.3:80", Capacity: 2},
		}))
	})

	It("should stop on a watch error without syncing it", func() {
		source.Load(nil, syncer)

		watch <- clientv3.WatchResponse{CompactRevision: 5}
		close(watch)

		Expect(source.Follow(watch, syncer)).To(MatchError(ContainSubstring("watch")))
		Expect(syncer.calls).To(HaveLen(1))
	})

	It("should keep following when a sync fails", func() {
		syncer.err = errors.New("pool full")
		source.Load(nil, syncer)

		watch <- clientv3.WatchResponse{Events: []*clientv3.Event{put(prefix+"10.0.0.1:80", "")}}
		close(watch)

		Expect(source.Follow(watch, syncer)).To(Succeed())
		Expect(syncer.calls).To(HaveLen(2))
		Expect(syncer.last()).To(Equal([]backend.Spec{{Address: "10.0.0.1:80"}}))
	})
})
