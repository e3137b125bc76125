package tracker_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/divertsy/beacon-scanner/mocks"
	"github.com/divertsy/beacon-scanner/pkg/connector"
	"github.com/divertsy/beacon-scanner/pkg/frame"
	"github.com/divertsy/beacon-scanner/pkg/registry"
	"github.com/divertsy/beacon-scanner/pkg/tracker"
)

const hostFilter = "hax"

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

func beacon(address string, rssi int, body string) connector.Advertisement {
	data := append([]byte{frame.TypeURL, 0xeb, 0x02}, frame.EncodeURLBody(body)...)
	return connector.Advertisement{
		Address:     address,
		RSSI:        rssi,
		ServiceData: []connector.ServiceData{{UUID: connector.EddystoneServiceUUID, Data: data}},
	}
}

// scale builds a WIT scale advertisement reporting 12.34 kg.
func scale(address, name string) connector.Advertisement {
	const key = 0x5a
	record := make([]byte, 31)
	record[3] = 0x07
	record[19] = 0x09
	record[20] = 0x00
	record[21] = 0x00 ^ key
	record[22] = key
	record[23] = 0x12 ^ key
	record[24] = 0x34 ^ key
	return connector.Advertisement{
		Address:      address,
		LocalName:    name,
		ServiceUUIDs: []uint16{connector.ScaleServiceUUID},
		Record:       record,
	}
}

var _ = Describe("Tracker", func() {
	var (
		ctrl     *gomock.Controller
		sink     *mocks.TrackerWeightSink
		observer *mocks.TrackerClosestObserver
		tr       *tracker.Tracker
		notified []*registry.Device
	)

	record := func(d *registry.Device) {
		notified = append(notified, d)
	}

	BeforeEach(func() {
		var err error
		notified = nil
		ctrl = gomock.NewController(GinkgoT())
		sink = mocks.NewTrackerWeightSink(ctrl)
		observer = mocks.NewTrackerClosestObserver(ctrl)
		tr, err = tracker.New(tracker.Config{HostFilter: hostFilter}, sink, observer)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			ctrl.Finish()
		})
	})

	It("rejects an empty host filter", func() {
		_, err := tracker.New(tracker.Config{}, nil, nil)
		Expect(err).To(MatchError(tracker.ErrNoHostFilter))
	})

	It("rejects a negative timeout", func() {
		_, err := tracker.New(tracker.Config{HostFilter: hostFilter, Timeout: -time.Second}, nil, nil)
		Expect(err).To(MatchError(tracker.ErrInvalidTimeout))
	})

	Context("closest selection", func() {
		It("notifies once per change", func() {
			observer.EXPECT().OnClosestChanged(gomock.Any()).Do(record).Times(3)

			tr.Process(beacon("AA", -60, "hax/f1/kitchen"), at(0))
			tr.Process(beacon("BB", -50, "HAX/f2/lobby"), at(10))
			tr.Process(beacon("AA", -40, "hax/f1/kitchen"), at(20))
			tr.Process(beacon("AA", -40, "hax/f1/kitchen"), at(30))

			Expect(notified).To(HaveLen(3))
			Expect(notified[0].Address).To(Equal("AA"))
			Expect(notified[1].Address).To(Equal("BB"))
			Expect(notified[2].Address).To(Equal("AA"))
		})

		It("reports the closest location", func() {
			observer.EXPECT().OnClosestChanged(gomock.Any()).Times(1)

			_, ok := tr.ClosestLocation()
			Expect(ok).To(BeFalse())

			tr.Process(beacon("AA", -60, "hax/f1/kitchen"), at(0))
			location, ok := tr.ClosestLocation()
			Expect(ok).To(BeTrue())
			Expect(location).To(Equal("http://hax/f1/kitchen"))
			Expect(tr.Closest().RSSI).To(Equal(-60))

			tr.Process(beacon("AA", -45, "hax/f1/kitchen"), at(10))
			Expect(tr.Closest().RSSI).To(Equal(-45))
		})

		It("ignores beacons for other hosts", func() {
			tr.Process(beacon("AA", -10, "example.com/"), at(0))
			Expect(tr.Closest()).To(BeNil())
			Expect(tr.Devices()).To(HaveLen(1))
		})

		It("never selects a device with an unknown frame type", func() {
			adv := beacon("AA", -10, "")
			adv.ServiceData[0].Data = []byte{0xff, 0x00}
			tr.Process(adv, at(0))

			devices := tr.Devices()
			Expect(devices).To(HaveLen(1))
			Expect(devices[0].URL).To(BeNil())
			Expect(devices[0].Status.InvalidFrameType).To(Equal("invalid frame type byte FF"))
			Expect(tr.Closest()).To(BeNil())
		})

		It("records advertised but missing service data", func() {
			tr.Process(connector.Advertisement{
				Address:      "AA",
				RSSI:         -70,
				ServiceUUIDs: []uint16{connector.EddystoneServiceUUID},
			}, at(0))
			devices := tr.Devices()
			Expect(devices).To(HaveLen(1))
			Expect(devices[0].Status.NullServiceData).NotTo(BeEmpty())
		})
	})

	Context("eviction", func() {
		It("notifies exactly once when the closest device goes out of range", func() {
			gomock.InOrder(
				observer.EXPECT().OnClosestChanged(gomock.Not(gomock.Nil())),
				observer.EXPECT().OnClosestChanged(gomock.Nil()),
			)

			tr.Process(beacon("AA", -60, "hax/f1"), at(0))
			tr.Sweep(at(5000))
			Expect(tr.Devices()).To(HaveLen(1))

			tr.Sweep(at(5001))
			Expect(tr.Devices()).To(BeEmpty())
			Expect(tr.Closest()).To(BeNil())

			tr.Sweep(at(10000))
		})

		It("falls back to the next closest device", func() {
			observer.EXPECT().OnClosestChanged(gomock.Any()).Do(record).Times(2)

			tr.Process(beacon("AA", -40, "hax/f1"), at(0))
			tr.Process(beacon("BB", -70, "hax/f2"), at(3000))
			tr.Sweep(at(5001))

			Expect(notified).To(HaveLen(2))
			Expect(notified[1].Address).To(Equal("BB"))
		})
	})

	Context("weights", func() {
		It("publishes scale readings without touching the registry", func() {
			var reading frame.WeightReading
			sink.EXPECT().PublishWeight(gomock.Any()).Do(func(r frame.WeightReading) {
				reading = r
			})

			tr.Process(scale("CC", "WIT-01"), at(0))
			Expect(reading.Value).To(BeNumerically("~", 12.34, 1e-9))
			Expect(reading.Unit).To(Equal(frame.UnitKilograms))
			Expect(reading.Device).To(Equal("WIT-01"))
			Expect(tr.Devices()).To(BeEmpty())
		})

		It("falls through to beacon decoding for other records", func() {
			observer.EXPECT().OnClosestChanged(gomock.Any())

			adv := beacon("AA", -50, "hax/f1")
			adv.Record = []byte{0x02, 0x01, 0x06}
			tr.Process(adv, at(0))
			Expect(tr.Devices()).To(HaveLen(1))
		})

		It("registers scale advertisements that are not weight frames", func() {
			adv := scale("CC", "WIT-01")
			adv.Record[3] = 0x00
			tr.Process(adv, at(0))
			devices := tr.Devices()
			Expect(devices).To(HaveLen(1))
			Expect(devices[0].Address).To(Equal("CC"))
			Expect(devices[0].Status.NullServiceData).NotTo(BeEmpty())
			Expect(tr.Closest()).To(BeNil())
		})

		It("ignores advertisements for unrelated services", func() {
			tr.Process(connector.Advertisement{Address: "DD", ServiceUUIDs: []uint16{0x180f}}, at(0))
			Expect(tr.Devices()).To(BeEmpty())
		})
	})

	Context("scanning", func() {
		It("does not accept advertisements before Start", func() {
			Expect(tr.Submit(beacon("AA", -50, "hax/f1"))).To(BeFalse())
		})

		It("processes submitted advertisements until stopped", func() {
			observer.EXPECT().OnClosestChanged(gomock.Not(gomock.Nil()))

			tr.Start(context.Background())
			tr.Start(context.Background())
			DeferCleanup(tr.Stop)

			adv := beacon("AA", -50, "hax/f1")
			adv.Received = time.Now()
			Expect(tr.Submit(adv)).To(BeTrue())
			Eventually(tr.Closest).ShouldNot(BeNil())

			tr.Stop()
			tr.Stop()
			Expect(tr.Submit(beacon("BB", -10, "hax/f2"))).To(BeFalse())
			Consistently(tr.Devices, 50*time.Millisecond).Should(HaveLen(1))
		})

		It("evicts on a timer while scanning", func() {
			var err error
			tr, err = tracker.New(tracker.Config{HostFilter: hostFilter, Timeout: 50 * time.Millisecond}, sink, observer)
			Expect(err).NotTo(HaveOccurred())
			gomock.InOrder(
				observer.EXPECT().OnClosestChanged(gomock.Not(gomock.Nil())),
				observer.EXPECT().OnClosestChanged(gomock.Nil()),
			)

			tr.Start(context.Background())
			DeferCleanup(tr.Stop)

			adv := beacon("AA", -50, "hax/f1")
			adv.Received = time.Now()
			Expect(tr.Submit(adv)).To(BeTrue())
			Eventually(tr.Devices).Should(HaveLen(1))
			Eventually(tr.Devices, time.Second).Should(BeEmpty())
			Expect(tr.Closest()).To(BeNil())
		})

		It("does not carry advertisements across a restart", func() {
			var err error
			tr, err = tracker.New(tracker.Config{HostFilter: hostFilter, QueueSize: 1}, sink, observer)
			Expect(err).NotTo(HaveOccurred())
			observer.EXPECT().OnClosestChanged(gomock.Any()).AnyTimes()

			tr.Start(context.Background())
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					for n := 0; n < 50; n++ {
						tr.Submit(beacon(fmt.Sprintf("A%d", i), -50, "hax/f1"))
					}
				}(i)
			}
			tr.Stop()
			wg.Wait()
			before := len(tr.Devices())

			tr.Start(context.Background())
			DeferCleanup(tr.Stop)
			Consistently(func() int {
				return len(tr.Devices())
			}, 50*time.Millisecond).Should(Equal(before))
		})

		It("stops when the context is canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			tr.Start(ctx)
			DeferCleanup(tr.Stop)
			cancel()
			Eventually(func() bool {
				return tr.Submit(beacon("AA", -50, "hax/f1"))
			}).Should(BeFalse())
		})
	})
})
