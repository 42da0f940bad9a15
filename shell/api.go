package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/rs/zerolog/log"

	"github.com/domino14/shapstack/board"
	"github.com/domino14/shapstack/cache"
	"github.com/domino14/shapstack/config"
	"github.com/domino14/shapstack/shapley"
)

const (
	defaultHistBins   = 10
	histWidth         = 40
	defaultSweepCount = 8
	simTickerInterval = 10 * time.Second
)

type Response struct {
	message string
}

type CmdOptions map[string][]string

func (c CmdOptions) String(key string) string {
	v := c[key]
	if len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c CmdOptions) Int(key string) (int, error) {
	v := c[key]
	if len(v) == 0 {
		return 0, errors.New(key + " not found in options")
	}
	return strconv.Atoi(v[0])
}

func (c CmdOptions) IntDefault(key string, defaultI int) (int, error) {
	v := c[key]
	if len(v) == 0 {
		return defaultI, nil
	}
	return strconv.Atoi(v[0])
}

func (c CmdOptions) FloatDefault(key string, defaultF float64) (float64, error) {
	v := c[key]
	if len(v) == 0 {
		return defaultF, nil
	}
	return strconv.ParseFloat(v[0], 64)
}

func msg(message string) *Response {
	return &Response{message: message}
}

func (sc *ShellController) simRunning() bool {
	if sc.simDone == nil {
		return false
	}
	select {
	case <-sc.simDone:
		return false
	default:
		return true
	}
}

// requireSim returns an error unless a board is loaded and no background
// simulation is running.
func (sc *ShellController) requireSim() error {
	if sc.sim == nil {
		return errNoBoard
	}
	if sc.simRunning() {
		return shapley.ErrSimming
	}
	return nil
}

func (sc *ShellController) abandonStepper() {
	if sc.stepper != nil {
		sc.stepper.Abandon()
		sc.stepper = nil
	}
}

func positiveArg(args []string, def int, what string) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive", what)
	}
	return n, nil
}

func (sc *ShellController) gen(cmd *shellcmd) (*Response, error) {
	if sc.simRunning() {
		return nil, shapley.ErrSimming
	}
	seed := sc.config.GetInt64(config.ConfigBoardSeed)
	if len(cmd.args) > 0 {
		s, err := strconv.ParseInt(cmd.args[0], 10, 64)
		if err != nil {
			return nil, err
		}
		seed = s
	}
	ref, err := cache.Board(sc.config, seed)
	if err != nil {
		return nil, err
	}
	sim, err := shapley.NewSimulator(ref, sc.config.SimSeed(seed))
	if err != nil {
		return nil, err
	}
	if err := sim.SetStopTolerance(sc.config.GetFloat64(config.ConfigStopTolerance)); err != nil {
		return nil, err
	}
	if sc.simLogFile != nil {
		sim.SetLogStream(sc.simLogFile)
	}
	sc.abandonStepper()
	sc.boardSeed = seed
	sc.ref = ref
	sc.sim = sim
	sc.highlight = board.NoPiece
	log.Debug().Int64("seed", seed).Int("pieces", ref.NumPieces()).Msg("generated-board")

	return msg(fmt.Sprintf("%sGenerated %d pieces from seed %d; reference height %d",
		ref.ToDisplayText(sc.highlight), ref.NumPieces(), seed, ref.StackHeight())), nil
}

func (sc *ShellController) step(cmd *shellcmd) (*Response, error) {
	if err := sc.requireSim(); err != nil {
		return nil, err
	}
	if sc.stepper == nil || sc.stepper.Done() {
		sc.stepper = sc.sim.RunIteration()
	}
	ev, err := sc.stepper.Next()
	if err != nil {
		sc.stepper = nil
		return nil, err
	}
	var ss strings.Builder
	switch ev.Type {
	case shapley.EventStart:
		fmt.Fprintf(&ss, "Iteration %s started; order %v\n", sc.count(ev.Iteration), sc.stepper.Permutation())
		ss.WriteString(ev.Board.ToDisplayText(board.NoPiece))
	case shapley.EventStep:
		ss.WriteString(ev.Board.ToDisplayText(ev.PieceID))
		fmt.Fprintf(&ss, "Iteration %s: piece #%d landed, height %d -> %d (%+d); its average is now %.3f",
			sc.count(ev.Iteration), ev.PieceID, ev.HeightBefore, ev.HeightAfter,
			ev.HeightAfter-ev.HeightBefore, ev.Contributions[ev.PieceID])
	case shapley.EventEnd:
		sc.stepper = nil
		fmt.Fprintf(&ss, "Iteration %s complete; final height %d\n\nReference board:\n",
			sc.count(ev.Iteration), ev.HeightAfter)
		ss.WriteString(sc.ref.ToDisplayText(sc.highlight))
		ss.WriteString(sc.sim.ContributionStats())
	}
	return msg(strings.TrimRight(ss.String(), "\n")), nil
}

// run brings the simulation up to a target iteration count in batches. A
// simulation already at or past the target starts over.
func (sc *ShellController) run(cmd *shellcmd) (*Response, error) {
	if err := sc.requireSim(); err != nil {
		return nil, err
	}
	target, err := positiveArg(cmd.args, sc.config.GetInt(config.ConfigIterations), "target")
	if err != nil {
		return nil, err
	}
	sc.abandonStepper()
	remaining := target - sc.sim.TotalIterations()
	if remaining <= 0 {
		if err := sc.sim.Reset(); err != nil {
			return nil, err
		}
		remaining = target
	}
	batch := sc.config.GetInt(config.ConfigBatchSize)
	ctx := context.Background()
	ran := 0
	for remaining > 0 {
		n := min(batch, remaining)
		if err := sc.sim.RunIterations(ctx, n); err != nil {
			return nil, err
		}
		remaining -= n
		ran += n
		log.Debug().Int("batch", n).Int("total", sc.sim.TotalIterations()).Msg("run-batch")
	}
	return msg(fmt.Sprintf("Ran %s iterations; total %s\n%s", sc.count(ran),
		sc.count(sc.sim.TotalIterations()), sc.sim.ShortDetails(5))), nil
}

func (sc *ShellController) iterate(cmd *shellcmd) (*Response, error) {
	if err := sc.requireSim(); err != nil {
		return nil, err
	}
	if len(cmd.args) == 0 {
		return nil, errors.New("iterate needs an iteration count")
	}
	k, err := positiveArg(cmd.args, 0, "iteration count")
	if err != nil {
		return nil, err
	}
	sc.abandonStepper()
	if err := sc.sim.RunIterations(context.Background(), k); err != nil {
		return nil, err
	}
	return msg(fmt.Sprintf("Total iterations: %s\n%s", sc.count(sc.sim.TotalIterations()),
		sc.sim.ShortDetails(5))), nil
}

func (sc *ShellController) reset(cmd *shellcmd) (*Response, error) {
	if err := sc.requireSim(); err != nil {
		return nil, err
	}
	sc.abandonStepper()
	if err := sc.sim.Reset(); err != nil {
		return nil, err
	}
	return msg("Simulation reset; the board is unchanged"), nil
}

func (sc *ShellController) show(cmd *shellcmd) (*Response, error) {
	if sc.ref == nil {
		return nil, errNoBoard
	}
	return msg(fmt.Sprintf("%sSeed %d, %d pieces, reference height %d, iterations %s",
		sc.ref.ToDisplayText(sc.highlight), sc.boardSeed, sc.ref.NumPieces(),
		sc.ref.StackHeight(), sc.count(sc.sim.TotalIterations()))), nil
}

func (sc *ShellController) contrib(cmd *shellcmd) (*Response, error) {
	if sc.sim == nil {
		return nil, errNoBoard
	}
	return msg(sc.sim.ContributionStats()), nil
}

func (sc *ShellController) setHighlight(cmd *shellcmd) (*Response, error) {
	if sc.ref == nil {
		return nil, errNoBoard
	}
	if len(cmd.args) != 1 {
		return nil, errors.New("usage: highlight <piece id|off>")
	}
	if cmd.args[0] == "off" {
		sc.highlight = board.NoPiece
		return msg(sc.ref.ToDisplayText(sc.highlight)), nil
	}
	id, err := strconv.Atoi(cmd.args[0])
	if err != nil {
		return nil, err
	}
	p, ok := sc.ref.Piece(board.PieceID(id))
	if !ok {
		return nil, fmt.Errorf("piece #%d: %w", id, board.ErrUnknownPiece)
	}
	sc.highlight = p.ID
	st := sc.sim.Stat(p.ID)
	return msg(fmt.Sprintf("%s%v: average contribution %.3f over %s insertions",
		sc.ref.ToDisplayText(sc.highlight), p, st.Mean(), sc.count(st.Iterations()))), nil
}

func (sc *ShellController) hist(cmd *shellcmd) (*Response, error) {
	if sc.sim == nil {
		return nil, errNoBoard
	}
	bins, err := cmd.options.IntDefault("bins", defaultHistBins)
	if err != nil {
		return nil, err
	}
	if bins <= 0 {
		return nil, errors.New("bins must be positive")
	}
	samples := sc.sim.HeightSamples()
	if len(samples) == 0 {
		return nil, errors.New("no completed iterations yet")
	}
	fh := sc.sim.FinalHeights()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Final stack height over %s iterations (mean %.2f, stdev %.2f, reference %d)\n",
		sc.count(fh.Iterations()), fh.Mean(), fh.Stdev(), sc.ref.StackHeight())
	h := histogram.Hist(bins, samples)
	if err := histogram.Fprint(&buf, h, histogram.Linear(histWidth)); err != nil {
		return nil, err
	}
	return msg(strings.TrimRight(buf.String(), "\n")), nil
}

func (sc *ShellController) simCommand(cmd *shellcmd) (*Response, error) {
	if sc.sim == nil {
		return nil, errNoBoard
	}
	if len(cmd.args) > 0 {
		switch cmd.args[0] {
		case "stop":
			if !sc.simRunning() {
				return nil, errors.New("no running sim to stop")
			}
			sc.stopSim()
			return msg(sc.sim.ContributionStats()), nil
		case "show":
			return msg(sc.sim.ContributionStats()), nil
		default:
			return nil, fmt.Errorf("do not understand sim argument %v", cmd.args[0])
		}
	}
	if sc.simRunning() {
		return nil, errors.New("simming already, please do a `sim stop` first")
	}

	stoppingCondition := shapley.StopNone
	for opt := range cmd.options {
		switch opt {
		case "stop", "tolerance", "cutoff", "check":
		default:
			return nil, errors.New("option " + opt + " not recognized")
		}
	}
	if pct := cmd.options.String("stop"); pct != "" {
		sci, err := strconv.Atoi(pct)
		if err != nil {
			return nil, err
		}
		stoppingCondition = shapley.StoppingConditionFromPercent(sci)
		if stoppingCondition == shapley.StopNone {
			return nil, errors.New("only allowed values are 90, 95, 98, and 99 for stopping condition")
		}
	}
	tolerance, err := cmd.options.FloatDefault("tolerance", sc.config.GetFloat64(config.ConfigStopTolerance))
	if err != nil {
		return nil, err
	}
	if tolerance <= 0 {
		return nil, errors.New("tolerance must be positive")
	}
	cutoff, err := cmd.options.IntDefault("cutoff", -1)
	if err != nil {
		return nil, err
	}
	check, err := cmd.options.IntDefault("check", -1)
	if err != nil {
		return nil, err
	}

	sc.abandonStepper()
	if err := sc.sim.SetStoppingCondition(stoppingCondition); err != nil {
		return nil, err
	}
	if err := sc.sim.SetStopTolerance(tolerance); err != nil {
		return nil, err
	}
	if cutoff >= 0 {
		if err := sc.sim.SetIterationsCutoff(uint64(cutoff)); err != nil {
			return nil, err
		}
	}
	if check > 0 {
		if err := sc.sim.SetAutostopCheckInterval(uint64(check)); err != nil {
			return nil, err
		}
	}
	log.Debug().Int("stoppingCondition", int(stoppingCondition)).Float64("tolerance", tolerance).
		Msg("will start sim")
	sc.startSim()
	return msg("Simulation started. Please do `sim show` or `contrib` to see more info"), nil
}

func (sc *ShellController) startSim() {
	sc.simCtx, sc.simCancel = context.WithCancel(context.Background())
	sc.simTicker = time.NewTicker(simTickerInterval)
	sc.simTickerDone = make(chan bool)
	sc.simDone = make(chan struct{})

	sim, ctx, ticker := sc.sim, sc.simCtx, sc.simTicker
	tickerDone, done := sc.simTickerDone, sc.simDone

	go func() {
		err := sim.Simulate(ctx)
		if err != nil {
			log.Err(err).Msg("simulation-error")
		}
		ticker.Stop()
		close(tickerDone)
		close(done)
		log.Debug().Msg("simulation thread exiting...")
	}()

	go func() {
		for {
			select {
			case <-tickerDone:
				log.Debug().Msg("ticker thread exiting...")
				return
			case <-ticker.C:
				log.Info().Msgf("Simulation is at %v iterations...", sim.TotalIterations())
			}
		}
	}()
}

// stopSim cancels the background simulation and waits for it to finish.
func (sc *ShellController) stopSim() {
	if sc.simCancel != nil {
		sc.simCancel()
	}
	if sc.simDone != nil {
		<-sc.simDone
	}
}

func (sc *ShellController) closeLog() {
	if sc.sim != nil {
		sc.sim.SetLogStream(nil)
	}
	if sc.simLogFile == nil {
		return
	}
	if err := sc.simLogFile.Close(); err != nil {
		log.Err(err).Msg("close-sim-log")
	}
	sc.simLogFile = nil
}

func (sc *ShellController) setLog(cmd *shellcmd) (*Response, error) {
	if sc.simRunning() {
		return nil, errors.New("please stop sim before making any log changes")
	}
	if len(cmd.args) != 1 {
		return nil, errors.New("usage: log <file|off>")
	}
	sc.closeLog()
	if cmd.args[0] == "off" {
		return msg("iteration logging is off"), nil
	}
	f, err := os.Create(cmd.args[0])
	if err != nil {
		return nil, err
	}
	sc.simLogFile = f
	if sc.sim != nil {
		sc.sim.SetLogStream(f)
	}
	return msg("iterations will be logged to " + cmd.args[0]), nil
}

func (sc *ShellController) replay(cmd *shellcmd) (*Response, error) {
	if err := sc.requireSim(); err != nil {
		return nil, err
	}
	if len(cmd.args) == 0 {
		return nil, errors.New("usage: replay <piece ids...>")
	}
	perm := make([]board.PieceID, len(cmd.args))
	for i, a := range cmd.args {
		id, err := strconv.Atoi(a)
		if err != nil {
			return nil, err
		}
		perm[i] = board.PieceID(id)
	}
	sc.abandonStepper()
	ins, final, err := sc.sim.ReplayPermutation(context.Background(), perm)
	if err != nil {
		return nil, err
	}
	var ss strings.Builder
	ss.WriteString(final.ToDisplayText(sc.highlight))
	for _, in := range ins {
		fmt.Fprintf(&ss, "#%d: %d -> %d (%+d)\n", in.PieceID, in.HeightBefore, in.HeightAfter, in.Marginal())
	}
	fmt.Fprintf(&ss, "Recorded as iteration %s", sc.count(sc.sim.TotalIterations()))
	return msg(ss.String()), nil
}

func (sc *ShellController) sweep(cmd *shellcmd) (*Response, error) {
	if sc.simRunning() {
		return nil, shapley.ErrSimming
	}
	count, err := cmd.options.IntDefault("count", defaultSweepCount)
	if err != nil {
		return nil, err
	}
	iters, err := cmd.options.IntDefault("iters", sc.config.GetInt(config.ConfigIterations))
	if err != nil {
		return nil, err
	}
	threads, err := cmd.options.IntDefault("threads", sc.config.GetInt(config.ConfigThreads))
	if err != nil {
		return nil, err
	}
	start := sc.config.GetInt64(config.ConfigBoardSeed)
	if s := cmd.options.String("start"); s != "" {
		start, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
	}
	if count <= 0 || iters <= 0 {
		return nil, errors.New("count and iters must be positive")
	}
	seeds := make([]int64, count)
	for i := range seeds {
		seeds[i] = start + int64(i)
	}
	t0 := time.Now()
	results, err := shapley.Sweep(context.Background(), shapley.SweepOptions{
		Seeds:      seeds,
		Iterations: iters,
		Threads:    threads,
		Gen:        sc.config.GenOptions(),
		SeedOffset: sc.config.GetInt64(config.ConfigSeedOffset),
	})
	if err != nil {
		return nil, err
	}
	var ss strings.Builder
	fmt.Fprintf(&ss, "%-10s%-8s%-12s%-12s%-8s%-8s\n", "Seed", "Pieces", "RefHeight", "MeanHeight", "Top", "TopAvg")
	for _, r := range results {
		fmt.Fprintf(&ss, "%-10d%-8d%-12d%-12.3f#%-7d%-8.3f\n",
			r.Seed, r.Pieces, r.ReferenceHeight, r.MeanHeight, r.Top, r.TopContribution)
	}
	fmt.Fprintf(&ss, "%s boards x %s iterations in %v", sc.count(count), sc.count(iters),
		time.Since(t0).Round(time.Millisecond))
	return msg(ss.String()), nil
}
