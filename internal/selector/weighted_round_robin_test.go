package selector_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/serverpool/internal/backend"
	"github.com/angeloszaimis/serverpool/internal/selector"
)

var _ = Describe("WeightedRoundRobin", func() {
	var (
		wrr     *selector.WeightedRoundRobin
		servers []*backend.Server
	)

	BeforeEach(func() {
		wrr = selector.NewWeightedRoundRobin()
	})

	register := func(list ...*backend.Server) {
		servers = list
		for _, s := range servers {
			Expect(wrr.Register(s)).To(Succeed())
		}
	}

	countSelections := func(iterations int) map[*backend.Server]int {
		counts := make(map[*backend.Server]int)
		for i := 0; i < iterations; i++ {
			s, err := wrr.Acquire()
			Expect(err).NotTo(HaveOccurred())
			counts[s]++
		}
		return counts
	}

	Context("without capacities", func() {
		BeforeEach(func() {
			register(newServers(3)...)
		})

		It("should distribute requests evenly", func() {
			counts := countSelections(300)
			Expect(counts).To(HaveLen(3))
			for _, count := range counts {
				Expect(count).To(Equal(100))
			}
		})
	})

	Context("with different capacities", func() {
		BeforeEach(func() {
			register(
				backend.NewWithCapacity("10.0.0.1:80", 5),
				backend.NewWithCapacity("10.0.0.2:80", 3),
				backend.NewWithCapacity("10.0.0.3:80", 1),
			)
		})

		It("should distribute requests proportionally", func() {
			counts := countSelections(900)
			Expect(counts[servers[0]]).To(Equal(500))
			Expect(counts[servers[1]]).To(Equal(300))
			Expect(counts[servers[2]]).To(Equal(100))
		})
	})

	Context("smooth weighted distribution", func() {
		It("should interleave the lighter server", func() {
			register(
				backend.NewWithCapacity("10.0.0.1:80", 5),
				backend.NewWithCapacity("10.0.0.2:80", 1),
			)

			selections := make([]*backend.Server, 6)
			for i := range selections {
				selections[i], _ = wrr.Acquire()
			}

			Expect(selections).To(Equal([]*backend.Server{
				servers[0], servers[0], servers[0], servers[1], servers[0], servers[0],
			}))
		})
	})

	Context("edge cases", func() {
		It("should skip servers with zero capacity", func() {
			register(
				backend.NewWithCapacity("10.0.0.1:80", 0),
				backend.NewWithCapacity("10.0.0.2:80", 5),
			)

			for i := 0; i < 10; i++ {
				Expect(wrr.Acquire()).To(Equal(servers[1]))
			}
		})

		It("should skip unhealthy servers", func() {
			register(newServers(2)...)
			servers[0].SetHealthy(false)

			for i := 0; i < 10; i++ {
				Expect(wrr.Acquire()).To(Equal(servers[1]))
			}
		})

		It("should fail with ErrNoHealthyServer when nothing is eligible", func() {
			register(backend.NewWithCapacity("10.0.0.1:80", 0))

			_, err := wrr.Acquire()
			Expect(err).To(MatchError(selector.ErrNoHealthyServer))
		})
	})

	Context("concurrency safety", func() {
		It("should handle concurrent requests", func() {
			register(newServers(2)...)

			var (
				wg     sync.WaitGroup
				mutex  sync.Mutex
				counts = make(map[*backend.Server]int)
			)
			for g := 0; g < 10; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					for i := 0; i < 10; i++ {
						s, err := wrr.Acquire()
						Expect(err).NotTo(HaveOccurred())
						mutex.Lock()
						counts[s]++
						mutex.Unlock()
					}
				}()
			}
			wg.Wait()

			Expect(counts[servers[0]]).To(Equal(50))
			Expect(counts[servers[1]]).To(Equal(50))
		})
	})
})
