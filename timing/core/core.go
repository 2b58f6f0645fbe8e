// Package core provides the cycle-accurate simulator driver (C11): an
// event-driven loop tying together the register file, memory hierarchy,
// and execution back-ends, and the statistics/trace it produces.
package core

import (
	"container/heap"
	"fmt"
	"io"

	"github.com/sarchlab/simtsim/config"
	"github.com/sarchlab/simtsim/emu"
	"github.com/sarchlab/simtsim/insts"
	"github.com/sarchlab/simtsim/timing/atomic"
	"github.com/sarchlab/simtsim/timing/barrier"
	"github.com/sarchlab/simtsim/timing/cache"
	"github.com/sarchlab/simtsim/timing/coalescer"
	"github.com/sarchlab/simtsim/timing/scheduler"
	"github.com/sarchlab/simtsim/timing/shared"
	"github.com/sarchlab/simtsim/timing/texture"
)

// SharedMemBase and TextureBase are the reserved address ranges the
// execution unit uses to route a memory access to C5 or the texture
// sampler instead of the coalesced global path (C4), per SPEC_FULL.md
// §4.9's "high bits of the address" routing rule.
const (
	SharedMemBase uint32 = 0xF0000000
	TextureBase   uint32 = 0xE0000000
)

// EventKind enumerates the event types the driver schedules.
type EventKind int

// Event kinds.
const (
	EventMemoryResponse EventKind = iota
	EventAtomicResponse
	EventWarpComplete
	EventSimulationEnd
)

// Event is one entry in the driver's event queue, ordered by
// (ScheduledCycle, seq) for deterministic tie-breaking among same-cycle
// events.
type Event struct {
	ScheduledCycle uint64
	seq            uint64
	Kind           EventKind
	WarpID         int
	DestReg        uint8
	Mask           emu.LaneMask
	Data           emu.LaneValues
}

type eventQueue []*Event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].ScheduledCycle != q[j].ScheduledCycle {
		return q[i].ScheduledCycle < q[j].ScheduledCycle
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(*Event)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Stats accumulates the counters SPEC_FULL.md §6 requires.
type Stats struct {
	TotalCycles          uint64
	InstructionsExecuted uint64
	MemoryRequests       uint64
	CacheHits            uint64
	CacheMisses          uint64
	CacheEvictions       uint64
	CacheWritebacks      uint64
	BankConflicts        int
	AtomicOps            uint64
	AtomicContentions    uint64
	BarrierReleases      uint64
	StallCycles          uint64
}

// IPC returns instructions_executed / total_cycles, or 0 if no cycles ran.
func (s Stats) IPC() float64 {
	if s.TotalCycles == 0 {
		return 0
	}
	return float64(s.InstructionsExecuted) / float64(s.TotalCycles)
}

// HitRate returns hits/(hits+misses), or 0 if there were no accesses.
func (s Stats) HitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// Observer receives callbacks for cycle advances, retired instructions,
// scheduled events and fatal faults. It replaces the DPI-style static
// callback pointer of the source design with an interface supplied at
// construction time; passing NopObserver disables observation.
type Observer interface {
	OnCycle(cycle uint64)
	OnInstructionRetired(warpID int, pc uint32)
	OnEvent(kind EventKind, warpID int)
	OnFault(err error)
}

// NopObserver implements Observer with no-ops, the default when the
// caller does not need instrumentation.
type NopObserver struct{}

// OnCycle implements Observer.
func (NopObserver) OnCycle(uint64) {}

// OnInstructionRetired implements Observer.
func (NopObserver) OnInstructionRetired(int, uint32) {}

// OnEvent implements Observer.
func (NopObserver) OnEvent(EventKind, int) {}

// OnFault implements Observer.
func (NopObserver) OnFault(error) {}

// Simulator is the C11 driver: it owns every subsystem instance and
// advances them one cycle at a time.
type Simulator struct {
	Config *config.Config

	Regs      *emu.RegFile
	Mem       *emu.Memory
	Cache     *cache.Cache
	Coalescer *coalescer.Coalescer
	Shared    *shared.Memory
	Atomics   *atomic.Engine
	Barriers  *barrier.Controller
	Decoder   *insts.Decoder
	ALU       *emu.ALU
	Branch    *emu.BranchUnit
	Scheduler *scheduler.Scheduler
	Texture   texture.Sampler

	Warps []*emu.Warp

	Observer Observer
	Trace    io.Writer

	events eventQueue
	seq    uint64
	cycle  uint64
	stats  Stats

	// traceAddr/traceData carry the last memory-class instruction's address
	// and value for emitTrace; zero for non-memory instructions.
	traceAddr uint32
	traceData uint32
}

// New builds a Simulator from cfg, a loaded program already resident in
// mem, and the initial set of warps. The caller is responsible for
// placing instructions and .data segments into mem before calling Run.
func New(cfg *config.Config, mem *emu.Memory, warps []*emu.Warp) *Simulator {
	backing := cache.NewMemoryBacking(mem)
	c := cache.New(cache.Config{
		TotalSize:     cfg.CacheSize,
		LineSize:      cfg.CacheLineSize,
		Associativity: cfg.Associativity,
		MemoryLatency: cfg.MemoryLatency,
	}, backing)

	s := &Simulator{
		Config:    cfg,
		Regs:      emu.NewRegFile(cfg.NumWarps, 32),
		Mem:       mem,
		Cache:     c,
		Coalescer: coalescer.New(cfg.CacheLineSize),
		Shared:    shared.New(cfg.SharedMemSize, cfg.NumBanks),
		Atomics:   atomic.New(mem, 64),
		Barriers:  barrier.New(cfg.MaxBarriers),
		Decoder:   insts.NewDecoder(),
		ALU:       emu.NewALU(),
		Branch:    emu.NewBranchUnit(),
		Scheduler: scheduler.New(warps, scheduler.DefaultBranchPenalty),
		Texture:   &texture.PassthroughSampler{},
		Warps:     warps,
		Observer:  NopObserver{},
	}
	heap.Init(&s.events)
	return s
}

func (s *Simulator) schedule(ev *Event) {
	ev.seq = s.seq
	s.seq++
	heap.Push(&s.events, ev)
}

// Stats returns the current statistics snapshot.
func (s *Simulator) Stats() Stats {
	st := s.stats
	st.CacheWritebacks = s.Cache.Stats().Writebacks
	return st
}

// Run advances the simulator until every warp has finished or the
// cycle_limit is reached, whichever comes first. On normal completion every
// dirty cache line is written back, so Mem holds the final data image.
func (s *Simulator) Run() error {
	for {
		done, err := s.Step()
		if err != nil {
			s.Observer.OnFault(err)
			return err
		}
		if done {
			s.Cache.Flush()
			return nil
		}
	}
}

// Step advances the simulator by exactly one cycle, returning true once
// every warp has reached the Finished state.
func (s *Simulator) Step() (bool, error) {
	if s.cycle >= s.Config.CycleLimit {
		return false, emu.NewFault(emu.FaultCycleLimitExceeded, fmt.Sprintf("exceeded %d cycles", s.Config.CycleLimit))
	}

	for s.events.Len() > 0 && s.events[0].ScheduledCycle <= s.cycle {
		ev := heap.Pop(&s.events).(*Event)
		s.handleEvent(ev)
	}

	if s.allFinished() {
		return true, nil
	}

	w := s.Scheduler.Next(s.Regs, s.srcRegsOf)
	if w == nil {
		s.stats.StallCycles++
	} else if err := s.issue(w); err != nil {
		return false, err
	}

	s.Barriers.Tick()
	s.Scheduler.Tick()
	s.cycle++
	s.stats.TotalCycles = s.cycle
	s.Observer.OnCycle(s.cycle)
	return false, nil
}

func (s *Simulator) allFinished() bool {
	for _, w := range s.Warps {
		if w.State != emu.Finished {
			return false
		}
	}
	return true
}

// srcRegsOf decodes w's next instruction just far enough to report which
// registers it reads, for the scheduler's scoreboard check.
func (s *Simulator) srcRegsOf(w *emu.Warp) scheduler.SourceRegs {
	word, err := s.Mem.ReadInstruction(w.PC)
	if err != nil {
		return scheduler.SourceRegs{0, 0}
	}
	inst := s.Decoder.Decode(word, w.PC)
	regs := scheduler.SourceRegs{inst.Src1, 0}
	if !inst.UseImmediate {
		regs[1] = inst.Src2
	}
	return regs
}

func (s *Simulator) issue(w *emu.Warp) error {
	word, err := s.Mem.ReadInstruction(w.PC)
	if err != nil {
		return err
	}
	inst := s.Decoder.Decode(word, w.PC)
	if inst.InvalidInstruction {
		return emu.NewFault(emu.FaultIllegalInstruction, fmt.Sprintf("warp %d pc 0x%x", w.ID, w.PC))
	}

	fallthroughPC := w.PC + 4
	var execErr error
	s.traceAddr, s.traceData = 0, 0

	switch inst.Class {
	case insts.ClassALU, insts.ClassMove:
		execErr = s.execALU(w, inst)
	case insts.ClassBranch:
		execErr = s.execBranch(w, inst, fallthroughPC)
	case insts.ClassLoad, insts.ClassStore:
		execErr = s.execMemory(w, inst, fallthroughPC)
	case insts.ClassSync:
		execErr = s.execSync(w, inst, fallthroughPC)
	case insts.ClassSpecial:
		execErr = s.execSpecial(w, inst, fallthroughPC)
	default:
		return emu.NewFault(emu.FaultIllegalInstruction, "unhandled class")
	}
	if execErr != nil {
		return execErr
	}

	w.MaybeReconverge(inst.Converges)
	s.stats.InstructionsExecuted++
	s.Observer.OnInstructionRetired(w.ID, w.PC)
	s.emitTrace(inst, w)
	return nil
}

func (s *Simulator) operands(w *emu.Warp, inst *insts.Instruction) (emu.LaneValues, emu.LaneValues) {
	src1 := s.Regs.Read(w.ID, inst.Src1)
	var src2 emu.LaneValues
	if inst.UseImmediate {
		for lane := 0; lane < emu.LanesPerWarp; lane++ {
			src2[lane] = uint32(int32(int16(inst.Immediate)))
		}
	} else {
		src2 = s.Regs.Read(w.ID, inst.Src2)
	}
	return src1, src2
}

func (s *Simulator) execALU(w *emu.Warp, inst *insts.Instruction) error {
	src1, src2 := s.operands(w, inst)
	result, err := s.ALU.Eval(inst.ALUOp, w.ActiveMask, src1, src2)
	if err != nil {
		return err
	}
	s.Regs.Write(w.ID, inst.Dest, w.ActiveMask, result)
	s.Regs.ClearBusy(w.ID, inst.Dest)
	w.PC += 4
	return nil
}

func (s *Simulator) execBranch(w *emu.Warp, inst *insts.Instruction, fallthroughPC uint32) error {
	src1, src2 := s.operands(w, inst)
	taken := s.Branch.ConditionMask(inst.BranchCond, w.ActiveMask, src1, src2)
	if err := s.Branch.Resolve(w, inst, taken, fallthroughPC); err != nil {
		return err
	}
	if inst.Diverges {
		s.Scheduler.StallForBranch(w.ID)
	}
	return nil
}

func (s *Simulator) execMemory(w *emu.Warp, inst *insts.Instruction, fallthroughPC uint32) error {
	base := s.Regs.Read(w.ID, inst.Src1)
	imm := int32(int16(inst.Immediate))
	addresses := emu.ComputeAddresses(w.ActiveMask, base, imm)
	isWrite := inst.Class == insts.ClassStore && !inst.IsAtomic
	lane0 := lowestLane(w.ActiveMask)

	switch {
	case inst.IsAtomic:
		return s.execAtomic(w, inst, addresses, fallthroughPC)
	case addresses[lane0] >= SharedMemBase:
		return s.execShared(w, inst, addresses, isWrite, fallthroughPC)
	case addresses[lane0] >= TextureBase:
		return s.execTexture(w, inst, addresses, fallthroughPC)
	default:
		return s.execGlobal(w, inst, addresses, isWrite, fallthroughPC)
	}
}

func lowestLane(mask emu.LaneMask) int {
	for lane := 0; lane < emu.LanesPerWarp; lane++ {
		if mask.Test(lane) {
			return lane
		}
	}
	return 0
}

func (s *Simulator) execGlobal(w *emu.Warp, inst *insts.Instruction, addresses emu.LaneValues, isWrite bool, fallthroughPC uint32) error {
	var reqs [emu.LanesPerWarp]coalescer.Request
	storeData := s.Regs.Read(w.ID, inst.Dest)
	byteEnable := byteEnableFor(inst.MemSize)

	for lane := 0; lane < emu.LanesPerWarp; lane++ {
		if !w.ActiveMask.Test(lane) {
			continue
		}
		reqs[lane] = coalescer.Request{Address: addresses[lane], WriteData: storeData[lane], ByteEnable: byteEnable}
	}
	groups := s.Coalescer.Coalesce(w.ActiveMask, reqs, isWrite)
	s.traceAddr = addresses[lowestLane(w.ActiveMask)]
	s.traceData = storeData[lowestLane(w.ActiveMask)]

	var maxLatency uint64
	var readData emu.LaneValues
	for _, g := range groups {
		s.stats.MemoryRequests++

		// One coalesced group is one cache-line transaction: probe (and
		// tally) it once using the group's lowest lane, then scatter each
		// lane's own data to/from the now-resident line without re-tallying.
		repLane := lowestLane(g.LaneMap)
		result := s.Cache.Probe(addresses[repLane], sizeOf(inst.MemSize), isWrite)
		s.tallyCache(result)
		if result.Latency > maxLatency {
			maxLatency = result.Latency
		}

		if isWrite {
			for lane := 0; lane < emu.LanesPerWarp; lane++ {
				if g.LaneMap.Test(lane) {
					s.Cache.WriteNoStat(addresses[lane], sizeOf(inst.MemSize), uint64(g.WriteData[lane]))
				}
			}
		} else {
			for lane := 0; lane < emu.LanesPerWarp; lane++ {
				if g.LaneMap.Test(lane) {
					readData[lane] = uint32(s.Cache.ReadNoStat(addresses[lane], sizeOf(inst.MemSize)))
				}
			}
		}
	}

	if !isWrite {
		s.traceData = readData[lowestLane(w.ActiveMask)]
		s.Regs.SetBusy(w.ID, inst.Dest)
		s.schedule(&Event{
			ScheduledCycle: s.cycle + maxLatency,
			Kind:           EventMemoryResponse,
			WarpID:         w.ID,
			DestReg:        inst.Dest,
			Mask:           w.ActiveMask,
			Data:           readData,
		})
	}
	w.PC = fallthroughPC
	return nil
}

func (s *Simulator) tallyCache(r cache.AccessResult) {
	if r.Hit {
		s.stats.CacheHits++
	} else {
		s.stats.CacheMisses++
	}
	if r.Evicted {
		s.stats.CacheEvictions++
	}
}

func (s *Simulator) execShared(w *emu.Warp, inst *insts.Instruction, addresses emu.LaneValues, isWrite bool, fallthroughPC uint32) error {
	var reqs [emu.LanesPerWarp]shared.LaneRequest
	storeData := s.Regs.Read(w.ID, inst.Dest)
	byteEnable := byteEnableFor(inst.MemSize)

	for lane := 0; lane < emu.LanesPerWarp; lane++ {
		if !w.ActiveMask.Test(lane) {
			continue
		}
		if addresses[lane] < SharedMemBase {
			return emu.NewFault(emu.FaultInvalidAddress,
				fmt.Sprintf("shared access at 0x%x is below the shared memory base 0x%x", addresses[lane], SharedMemBase))
		}
		wordIdx := (addresses[lane] - SharedMemBase) / 4
		reqs[lane] = shared.LaneRequest{WordIndex: wordIdx, Data: storeData[lane], ByteEnable: byteEnable}
	}

	result, err := s.Shared.Access(w.ActiveMask, reqs, isWrite)
	if err != nil {
		return err
	}
	s.stats.BankConflicts += result.BankConflicts
	s.traceAddr = addresses[lowestLane(w.ActiveMask)]
	if isWrite {
		s.traceData = storeData[lowestLane(w.ActiveMask)]
	} else {
		s.Regs.Write(w.ID, inst.Dest, w.ActiveMask, result.ReadData)
		s.Regs.ClearBusy(w.ID, inst.Dest)
		s.traceData = result.ReadData[lowestLane(w.ActiveMask)]
	}
	w.PC = fallthroughPC
	return nil
}

func (s *Simulator) execTexture(w *emu.Warp, inst *insts.Instruction, addresses emu.LaneValues, fallthroughPC uint32) error {
	var idx [emu.LanesPerWarp]uint32
	for lane := 0; lane < emu.LanesPerWarp; lane++ {
		idx[lane] = (addresses[lane] - TextureBase) / 4
	}
	data, err := s.Texture.Sample(uint32(w.ActiveMask), idx)
	if err != nil {
		return err
	}
	s.Regs.Write(w.ID, inst.Dest, w.ActiveMask, emu.LaneValues(data))
	s.Regs.ClearBusy(w.ID, inst.Dest)
	w.PC = fallthroughPC
	return nil
}

func (s *Simulator) execAtomic(w *emu.Warp, inst *insts.Instruction, addresses emu.LaneValues, fallthroughPC uint32) error {
	data := s.Regs.Read(w.ID, inst.Dest)
	var reqs [emu.LanesPerWarp]atomic.Request
	for lane := 0; lane < emu.LanesPerWarp; lane++ {
		if !w.ActiveMask.Test(lane) {
			continue
		}
		reqs[lane] = atomic.Request{Op: inst.AtomicOp, Address: addresses[lane], Data: data[lane], WarpID: w.ID}
	}

	before := s.Atomics.Contentions()
	responses, err := s.Atomics.SubmitWarp(w.ActiveMask, reqs)
	if err != nil {
		return err
	}
	s.stats.AtomicContentions += s.Atomics.Contentions() - before

	var result emu.LaneValues
	for lane := 0; lane < emu.LanesPerWarp; lane++ {
		if responses[lane] != nil {
			result[lane] = responses[lane].PreValue
			s.stats.AtomicOps++
		}
	}
	s.Regs.Write(w.ID, inst.Dest, w.ActiveMask, result)
	s.Regs.ClearBusy(w.ID, inst.Dest)
	s.traceAddr = addresses[lowestLane(w.ActiveMask)]
	s.traceData = data[lowestLane(w.ActiveMask)]
	w.PC = fallthroughPC
	return nil
}

func (s *Simulator) execSync(w *emu.Warp, inst *insts.Instruction, fallthroughPC uint32) error {
	switch inst.SyncOp {
	case insts.SyncBarrier, insts.SyncArrive:
		key := barrier.Key{BarrierID: uint32(inst.Immediate), BlockID: uint32(w.BlockID)}
		if err := s.Barriers.Arrive(key, emu.LaneMask(1)<<uint(w.ID%32), fullWarpBarrierMask(w.BlockID, s.Warps), s.cycle); err != nil {
			return err
		}
		if inst.SyncOp == insts.SyncBarrier {
			w.State = emu.WaitingBarrier
		}
		w.PC = fallthroughPC
		s.releaseBarrierIfReady(key, w.BlockID)
	case insts.SyncWait:
		key := barrier.Key{BarrierID: uint32(inst.Immediate), BlockID: uint32(w.BlockID)}
		if !s.releaseBarrierIfReady(key, w.BlockID) {
			w.State = emu.WaitingBarrier
		}
		w.PC = fallthroughPC
	case insts.SyncVoteAll, insts.SyncVoteAny:
		src1 := s.Regs.Read(w.ID, inst.Src1)
		vote := inst.SyncOp == insts.SyncVoteAll
		for lane := 0; lane < emu.LanesPerWarp; lane++ {
			if !w.ActiveMask.Test(lane) {
				continue
			}
			lanePasses := src1[lane] != 0
			if inst.SyncOp == insts.SyncVoteAll {
				vote = vote && lanePasses
			} else {
				vote = vote || lanePasses
			}
		}
		var result emu.LaneValues
		for lane := range result {
			if vote {
				result[lane] = 1
			}
		}
		s.Regs.Write(w.ID, inst.Dest, w.ActiveMask, result)
		s.Regs.ClearBusy(w.ID, inst.Dest)
		w.PC = fallthroughPC
	default:
		w.PC = fallthroughPC
	}
	return nil
}

// fullWarpBarrierMask reuses the 32-bit LaneMask to track which warps of a
// block have arrived, one bit per warp slot. This bounds a block to 32
// warps (1024 threads at 32 lanes/warp), matching the per-block thread cap
// of the hardware this simulator models.
func fullWarpBarrierMask(blockID int, warps []*emu.Warp) emu.LaneMask {
	var mask emu.LaneMask
	for _, w := range warps {
		if w.BlockID == blockID {
			mask = mask.Set(w.ID % 32)
		}
	}
	return mask
}

// releaseBarrierIfReady checks whether key's barrier has every expected
// arrival and, if so, releases the waiting block and folds the entry's
// accumulated wait time into the global stall-cycle counter per §4.7. It
// reports whether the barrier released.
func (s *Simulator) releaseBarrierIfReady(key barrier.Key, blockID int) bool {
	wait := s.Barriers.WaitCycles(key)
	if !s.Barriers.Released(key) {
		return false
	}
	s.stats.StallCycles += wait
	s.stats.BarrierReleases++
	s.releaseBlock(blockID)
	return true
}

func (s *Simulator) releaseBlock(blockID int) {
	for _, w := range s.Warps {
		if w.BlockID == blockID && w.State == emu.WaitingBarrier {
			w.State = emu.Ready
		}
	}
}

func (s *Simulator) execSpecial(w *emu.Warp, inst *insts.Instruction, fallthroughPC uint32) error {
	switch inst.SpecialOp {
	case insts.SpecialExit:
		w.State = emu.Finished
		s.schedule(&Event{ScheduledCycle: s.cycle, Kind: EventWarpComplete, WarpID: w.ID})
	case insts.SpecialTid:
		var result emu.LaneValues
		for lane := 0; lane < emu.LanesPerWarp; lane++ {
			result[lane] = uint32(lane)
		}
		s.Regs.Write(w.ID, inst.Dest, w.ActiveMask, result)
		s.Regs.ClearBusy(w.ID, inst.Dest)
		w.PC = fallthroughPC
	default:
		w.PC = fallthroughPC
	}
	return nil
}

func (s *Simulator) handleEvent(ev *Event) {
	switch ev.Kind {
	case EventMemoryResponse:
		s.Regs.Write(ev.WarpID, ev.DestReg, ev.Mask, ev.Data)
		s.Regs.ClearBusy(ev.WarpID, ev.DestReg)
	case EventWarpComplete, EventAtomicResponse, EventSimulationEnd:
		// no further bookkeeping required; state already updated at issue time
	}
	s.Observer.OnEvent(ev.Kind, ev.WarpID)
}

// emitTrace writes one CSV record per retired instruction: cycle, kind,
// warp_id, pc, address, data. pc and address are lowercase hex without a
// prefix; the other numeric fields are decimal. address/data are zero for
// non-memory instructions (traceAddr/traceData are reset at the start of
// issue).
func (s *Simulator) emitTrace(inst *insts.Instruction, w *emu.Warp) {
	if s.Trace == nil {
		return
	}
	fmt.Fprintf(s.Trace, "%d,%s,%d,%x,%x,%d\n", s.cycle, inst.Class, w.ID, w.PC, s.traceAddr, s.traceData)
}

func byteEnableFor(size insts.MemSize) uint8 {
	switch size {
	case insts.MemByte:
		return 0x1
	case insts.MemHalf:
		return 0x3
	default:
		return 0xF
	}
}

func sizeOf(size insts.MemSize) int {
	switch size {
	case insts.MemByte:
		return 1
	case insts.MemHalf:
		return 2
	default:
		return 4
	}
}
