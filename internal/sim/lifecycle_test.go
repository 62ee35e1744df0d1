package sim_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/plant"
	"github.com/san-kum/conesim/internal/poles"
	"github.com/san-kum/conesim/internal/sim"
)

var _ = Describe("Integrator lifecycle", func() {
	var (
		in  *sim.Integrator
		cfg sim.Config
	)

	BeforeEach(func() {
		p, err := plant.Build(plant.DefaultParameters())
		Expect(err).NotTo(HaveOccurred())

		cfg = sim.DefaultConfig()
		cfg.SimLength = 50
		cfg.StepsPerFrame = 10
		in, err = sim.New(p, cfg)
		Expect(err).NotTo(HaveOccurred())
	})

	It("starts ready at the seeded tilt", func() {
		s := in.State()
		Expect(in.Phase()).To(Equal(sim.Ready))
		Expect(s.Tilt()).To(Equal(sim.DefaultInitialTilt))
		Expect(s.T).To(BeZero())
	})

	It("steps, then completes after the budget", func() {
		in.Update()
		Expect(in.Phase()).To(Equal(sim.Stepping))

		frames := 0
		for !in.Complete() {
			in.Frame(0)
			frames++
		}
		Expect(frames).To(Equal(5))
		Expect(in.State().Step).To(Equal(cfg.SimLength))
		Expect(in.State().T).To(BeNumerically("~", 0.5, 1e-12))
	})

	Context("after completion", func() {
		BeforeEach(func() {
			for !in.Complete() {
				in.Update()
			}
		})

		It("ignores further updates", func() {
			terminal := in.State()
			for i := 0; i < 10; i++ {
				Expect(in.Update()).To(Equal(terminal.X))
			}
			Expect(in.State()).To(Equal(terminal))
		})

		It("cannot be failed", func() {
			in.Fail("late")
			Expect(in.Phase()).To(Equal(sim.Complete))
		})

		It("restarts from the initial state on reset", func() {
			in.Reset()
			Expect(in.Phase()).To(Equal(sim.Ready))
			Expect(in.State().X).To(Equal(dynamo.State{0, 0, sim.DefaultInitialTilt, 0}))
		})
	})

	Describe("poles", func() {
		It("are stable for the default gains", func() {
			s, err := in.Stability()
			Expect(err).NotTo(HaveOccurred())
			Expect(s).To(Equal(poles.Stable))
		})

		It("follow a gain change without an update in between", func() {
			in.SetGains(control.Gains{-9050, -3150, -4800, -9750}.Slice())
			ps, err := in.Poles()
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(HaveLen(4))
			Expect(poles.SpectralAbscissa(ps)).To(BeNumerically("~", 1.8819, 1e-3))
		})

		It("come in conjugate pairs", func() {
			ps, err := in.Poles()
			Expect(err).NotTo(HaveOccurred())
			for _, p := range ps {
				if p.Imag() == 0 {
					continue
				}
				Expect(ps).To(ContainElement(poles.Pole{Value: complex(p.Real(), -p.Imag())}))
			}
		})
	})

	It("lets unstable gains diverge without error", func() {
		in.SetGains(control.Gains{-9050, -3150, -4800, -9750}.Slice())
		for i := 0; i < 10; i++ {
			in.Update()
		}
		x := in.State().X
		for _, v := range x {
			Expect(math.IsNaN(v)).To(BeFalse())
		}
		Expect(in.Phase()).To(Equal(sim.Stepping))
	})
})

var _ = Describe("Session", func() {
	It("applies queued gains on the next tick", func() {
		p, err := plant.Build(plant.DefaultParameters())
		Expect(err).NotTo(HaveOccurred())
		in, err := sim.New(p, sim.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		s := sim.NewSession(in)
		s.SetGains(control.Gains{})
		Expect(in.Gains()).To(Equal(control.DefaultGains.Slice()))

		s.Tick()
		Expect(in.Gains()).To(Equal([]float64{0, 0, 0, 0}))
	})
})
