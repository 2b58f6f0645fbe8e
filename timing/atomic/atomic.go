// Package atomic implements the linearizable RMW engine (C6): per-address
// serialization with a FIFO contention queue and a five-stage pipeline.
package atomic

import (
	"sort"

	"github.com/google/btree"

	"github.com/sarchlab/simtsim/emu"
	"github.com/sarchlab/simtsim/insts"
)

// Stage is a position in the atomic pipeline of SPEC_FULL.md §4.6.
type Stage int

// Pipeline stages.
const (
	StageIdle Stage = iota
	StageReadMem
	StageCompute
	StageWriteMem
	StageRespond
)

// Request is one atomic RMW request.
type Request struct {
	Op          insts.AtomicOp
	Address     uint32
	Data        uint32
	CompareData uint32
	WarpID      int
	LaneID      int
}

// Response carries the pre-image value an atomic observed, per §4.6's
// linearizability contract: the returned value is always the state of
// memory immediately before this request's effect was applied.
type Response struct {
	Request  Request
	PreValue uint32
}

// inFlight is the locked-address entry: the address holds its lock from
// the first request's ReadMem stage until its FIFO queue drains.
type inFlight struct {
	address uint32
	queue   []Request
}

func (f *inFlight) Less(than btree.Item) bool {
	return f.address < than.(*inFlight).address
}

// MemoryBackend is the word-addressable backing cell atomics operate
// against (C2, accessed a word at a time).
type MemoryBackend interface {
	Read32(addr uint32) (uint32, error)
	Write32(addr uint32, v uint32) error
}

// Engine is the atomic RMW engine (C6). The locked-address set is backed by
// a btree and is only looked up by address, never iterated; SubmitWarp
// drains the addresses it touched in ascending order by sorting them, per
// the determinism contract of SPEC_FULL.md §5.
type Engine struct {
	mem         MemoryBackend
	locked      *btree.BTree
	maxQueue    int
	ops         uint64
	contentions uint64
}

// New creates an Engine over mem with a bounded per-address contention
// queue depth. Exceeding maxQueue on any address fails with
// AtomicBackpressure.
func New(mem MemoryBackend, maxQueue int) *Engine {
	return &Engine{mem: mem, locked: btree.New(4), maxQueue: maxQueue}
}

// Ops returns the total number of atomic requests submitted.
func (e *Engine) Ops() uint64 { return e.ops }

// Contentions returns the number of requests that found their address
// already locked and were queued.
func (e *Engine) Contentions() uint64 { return e.contentions }

// Submit accepts req. If its address is free, the request locks it and
// runs the full Idle→ReadMem→Compute→WriteMem→Respond pipeline
// synchronously, returning its response; the lock is held afterward until
// Release is called. If the address is already locked, req is appended to
// the FIFO queue (a contention event) and Submit returns (nil, nil).
func (e *Engine) Submit(req Request) (*Response, error) {
	e.ops++

	probe := &inFlight{address: req.Address}
	if item := e.locked.Get(probe); item != nil {
		f := item.(*inFlight)
		if len(f.queue) >= e.maxQueue {
			return nil, emu.NewFault(emu.FaultAtomicBackpressure, "atomic contention queue full")
		}
		e.contentions++
		f.queue = append(f.queue, req)
		return nil, nil
	}

	resp, err := e.runStages(req)
	if err != nil {
		return nil, err
	}
	e.locked.ReplaceOrInsert(&inFlight{address: req.Address})
	return resp, nil
}

// Release drains the next queued request for address, if any, running it
// through the same pipeline and returning its response; the lock stays
// held until the queue is empty. If nothing is queued the address is
// unlocked and Release returns (nil, nil). Release on an address with no
// lock held is also (nil, nil).
func (e *Engine) Release(address uint32) (*Response, error) {
	item := e.locked.Get(&inFlight{address: address})
	if item == nil {
		return nil, nil
	}
	f := item.(*inFlight)
	if len(f.queue) == 0 {
		e.locked.Delete(f)
		return nil, nil
	}

	next := f.queue[0]
	f.queue = f.queue[1:]
	resp, err := e.runStages(next)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) runStages(req Request) (*Response, error) {
	_ = StageReadMem // stages are conceptual here; latency is charged by the driver
	pre, err := e.mem.Read32(req.Address)
	if err != nil {
		return nil, err
	}
	post := apply(req.Op, pre, req.Data, req.CompareData)
	if err := e.mem.Write32(req.Address, post); err != nil {
		return nil, err
	}
	return &Response{Request: req, PreValue: pre}, nil
}

// SubmitWarp processes every active lane's atomic request from a single
// SIMT instruction, in ascending lane order for determinism, and fully
// drains the resulting contention for each address before returning. This
// is the entry point the execution unit (C9) uses for an atomic opcode.
func (e *Engine) SubmitWarp(mask emu.LaneMask, reqs [emu.LanesPerWarp]Request) ([emu.LanesPerWarp]*Response, error) {
	var responses [emu.LanesPerWarp]*Response
	touched := map[uint32]bool{}

	for lane := 0; lane < emu.LanesPerWarp; lane++ {
		if !mask.Test(lane) {
			continue
		}
		req := reqs[lane]
		req.LaneID = lane
		touched[req.Address] = true

		resp, err := e.Submit(req)
		if err != nil {
			return responses, err
		}
		if resp != nil {
			responses[lane] = resp
		}
	}

	addrs := make([]uint32, 0, len(touched))
	for a := range touched {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	for _, addr := range addrs {
		for {
			resp, err := e.Release(addr)
			if err != nil {
				return responses, err
			}
			if resp == nil {
				break
			}
			responses[resp.Request.LaneID] = resp
		}
	}

	return responses, nil
}

// apply computes f_op(pre, d, c) per the table in SPEC_FULL.md §4.6.
func apply(op insts.AtomicOp, pre, d, c uint32) uint32 {
	switch op {
	case insts.AtomicAdd:
		return pre + d
	case insts.AtomicSub:
		return pre - d
	case insts.AtomicExch:
		return d
	case insts.AtomicMin:
		if int32(d) < int32(pre) {
			return d
		}
		return pre
	case insts.AtomicMax:
		if int32(d) > int32(pre) {
			return d
		}
		return pre
	case insts.AtomicAnd:
		return pre & d
	case insts.AtomicOr:
		return pre | d
	case insts.AtomicXor:
		return pre ^ d
	case insts.AtomicCAS:
		if pre == c {
			return d
		}
		return pre
	case insts.AtomicInc:
		return pre + 1
	case insts.AtomicDec:
		return pre - 1
	default:
		return pre
	}
}
