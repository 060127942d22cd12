package sim

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/san-kum/becsim/internal/bec"
	"github.com/san-kum/becsim/internal/telemetry"
)

var _ = Describe("Integrator lifecycle", func() {
	var (
		stepper *eulerDecay
		psi     *bec.State
	)

	BeforeEach(func() {
		stepper = newEulerDecay(1)
		psi = initial(pointLayout(1), 1)
	})

	It("starts idle", func() {
		in, err := New(stepper)
		Expect(err).NotTo(HaveOccurred())
		Expect(in.Status()).To(Equal(Idle))
		Expect(in.Status().Terminal()).To(BeFalse())
	})

	Context("when steps are rejected", func() {
		var (
			sampler  *countingSampler
			filter   *countingFilter
			observed int
			res      *Result
		)

		BeforeEach(func() {
			sampler = &countingSampler{}
			filter = &countingFilter{}
			observed = 0

			in, err := New(stepper, WithObserver(ObserverFunc(func(Progress) { observed++ })))
			Expect(err).NotTo(HaveOccurred())

			res, err = in.AdaptiveStep(context.Background(), psi, 0, AdaptiveConfig{
				Dt:        0.5,
				TEnd:      0.5,
				Tolerance: 1e-5,
				Samplers:  []NamedSampler{{"N", sampler}},
				Filters:   []bec.Filter{filter},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects the oversized initial step", func() {
			Expect(res.Rejected).To(BeNumerically(">", 0))
		})

		It("hides rejected attempts from filters, samplers and observers", func() {
			Expect(filter.calls).To(Equal(res.Accepted))
			Expect(sampler.calls).To(Equal(res.Accepted + 1))
			Expect(observed).To(Equal(res.Accepted + 1))
		})

		It("records one sample per accepted step", func() {
			Expect(res.Times).To(HaveLen(res.Accepted + 1))
			Expect(res.Steps).To(HaveLen(res.Accepted))
			Expect(res.Status).To(Equal(TimeLimitReached))
			Expect(res.Times[len(res.Times)-1]).To(BeNumerically("~", 0.5, 1e-12))
		})
	})

	Context("when the state diverges", func() {
		// the adaptive path keeps the two half steps: (1 - 0.05)^2 per step
		It("fails and keeps the last good state", func() {
			stepper.blowUp = 0.3
			in, _ := New(stepper)

			res, err := in.AdaptiveStep(context.Background(), psi, 0, AdaptiveConfig{
				Dt:         0.1,
				TEnd:       1,
				SampleTime: 0.1,
				MaxDt:      0.1,
				Tolerance:  1,
				Samplers:   []NamedSampler{{"N", value}},
			})

			Expect(errors.Is(err, bec.ErrDivergence)).To(BeTrue())
			var ie *bec.IntegrationError
			Expect(errors.As(err, &ie)).To(BeTrue())
			Expect(ie.Time).To(BeNumerically("~", 0.3, 1e-9))

			Expect(res.Status).To(Equal(Failed))
			Expect(in.Status()).To(Equal(Failed))
			Expect(res.Steps).To(HaveLen(3))
			Expect(real(psi.Data[0])).To(BeNumerically("~", math.Pow(0.9025, 3), 1e-12))
		})
	})

	Context("when the context is canceled", func() {
		It("stops at the next segment boundary", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			samples := 0
			in, _ := New(stepper, WithObserver(ObserverFunc(func(Progress) {
				samples++
				if samples == 2 {
					cancel()
				}
			})))

			res, err := in.FixedStep(ctx, psi, 0, FixedConfig{
				Interval: 1,
				Steps:    10,
				Samples:  5,
				Samplers: []NamedSampler{{"N", value}},
			})

			Expect(errors.Is(err, bec.ErrCanceled)).To(BeTrue())
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(res.Status).To(Equal(Failed))
			Expect(res.Times).To(HaveLen(2))
			Expect(res.Steps).To(HaveLen(1))
			Expect(res.Accepted).To(Equal(2))
		})

		It("does not start an adaptive run", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			in, _ := New(stepper)
			res, err := in.AdaptiveStep(ctx, psi, 0, AdaptiveConfig{Dt: 0.1, TEnd: 1, Tolerance: 1})
			Expect(errors.Is(err, bec.ErrCanceled)).To(BeTrue())
			Expect(res.Accepted).To(BeZero())
			Expect(psi.Data[0]).To(Equal(complex(1, 0)))
		})
	})

	Context("with telemetry", func() {
		It("counts accepted and rejected steps and the terminal status", func() {
			reg := prometheus.NewRegistry()
			in, _ := New(stepper, WithMetrics(telemetry.New(reg)))

			res, err := in.AdaptiveStep(context.Background(), psi, 0, AdaptiveConfig{
				Dt:        0.5,
				TEnd:      0.5,
				Tolerance: 1e-4,
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(testutil.GatherAndCount(reg, "becsim_steps_accepted_total")).To(Equal(1))
			families, err := reg.Gather()
			Expect(err).NotTo(HaveOccurred())

			counts := map[string]float64{}
			for _, mf := range families {
				for _, m := range mf.GetMetric() {
					if c := m.GetCounter(); c != nil {
						counts[mf.GetName()] += c.GetValue()
					}
				}
			}
			Expect(counts["becsim_steps_accepted_total"]).To(Equal(float64(res.Accepted)))
			Expect(counts["becsim_steps_rejected_total"]).To(Equal(float64(res.Rejected)))
			Expect(counts["becsim_integrations_total"]).To(Equal(1.0))
		})
	})
})
