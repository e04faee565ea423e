// Package collstore implements the slotted-page document heap: one
// collection's documents live across a chain of data pages, each laid
// out with a slot directory growing from the page start and cell data
// growing from the end, meeting in the middle. Oversized documents
// spill into an overflow page chain.
package collstore

import (
	"encoding/binary"

	"github.com/joeandaverde/tinydb/internal/storage"
)

// slotFlag distinguishes what a slot's cell bytes hold.
type slotFlag byte

const (
	slotNormal    slotFlag = 0
	slotOverflow  slotFlag = 1
	slotTombstone slotFlag = 2
)

const (
	// Data page header: type tag(1) + nextDataPage(8) + slotCount(2) +
	// cellContentStart(2).
	dataHeaderSize = 13
	// slotEntrySize: offset(2) + length(2) + flag(1).
	slotEntrySize = 5
	// Collection root page: type tag(1) + firstDataPage(8) + docCount(8).
	rootHeaderSize = 17
	// Overflow page: type tag(1) + nextOverflowPage(8).
	overflowHeaderSize = 9
	// overflowLocalityPrefix bounds how many payload bytes are copied
	// into the owning slot for cache-friendly peeking without following
	// the overflow chain.
	overflowLocalityPrefix = 64
)

func newDataPage(id storage.PageID, pageSize int) *storage.Page {
	p := storage.NewPage(id, storage.PageTypeData, pageSize)
	setNextDataPage(p, 0)
	setSlotCount(p, 0)
	setCellStart(p, uint16(pageSize))
	return p
}

func nextDataPage(p *storage.Page) storage.PageID {
	return storage.PageID(binary.LittleEndian.Uint64(p.Data[1:9]))
}

func setNextDataPage(p *storage.Page, next storage.PageID) {
	binary.LittleEndian.PutUint64(p.Data[1:9], uint64(next))
}

func slotCount(p *storage.Page) uint16 {
	return binary.LittleEndian.Uint16(p.Data[9:11])
}

func setSlotCount(p *storage.Page, n uint16) {
	binary.LittleEndian.PutUint16(p.Data[9:11], n)
}

func cellStart(p *storage.Page) uint16 {
	return binary.LittleEndian.Uint16(p.Data[11:13])
}

func setCellStart(p *storage.Page, off uint16) {
	binary.LittleEndian.PutUint16(p.Data[11:13], off)
}

func slotOffsetOf(slot uint16) int {
	return dataHeaderSize + int(slot)*slotEntrySize
}

type slotEntry struct {
	offset uint16
	length uint16
	flag   slotFlag
}

func readSlot(p *storage.Page, slot uint16) slotEntry {
	off := slotOffsetOf(slot)
	return slotEntry{
		offset: binary.LittleEndian.Uint16(p.Data[off : off+2]),
		length: binary.LittleEndian.Uint16(p.Data[off+2 : off+4]),
		flag:   slotFlag(p.Data[off+4]),
	}
}

func writeSlot(p *storage.Page, slot uint16, e slotEntry) {
	off := slotOffsetOf(slot)
	binary.LittleEndian.PutUint16(p.Data[off:off+2], e.offset)
	binary.LittleEndian.PutUint16(p.Data[off+2:off+4], e.length)
	p.Data[off+4] = byte(e.flag)
}

// cellBytes returns the live bytes for a slot's cell.
func cellBytes(p *storage.Page, e slotEntry) []byte {
	return p.Data[e.offset : e.offset+e.length]
}

// directoryEnd is the first byte past the slot directory array.
func directoryEnd(p *storage.Page) int {
	return dataHeaderSize + int(slotCount(p))*slotEntrySize
}

// freeSpace is the room left between the slot directory and the cell
// data area.
func freeSpace(p *storage.Page) int {
	return int(cellStart(p)) - directoryEnd(p)
}

// findTombstone returns the index of a reusable tombstoned slot, if any.
func findTombstone(p *storage.Page) (uint16, bool) {
	n := slotCount(p)
	for i := uint16(0); i < n; i++ {
		if readSlot(p, i).flag == slotTombstone {
			return i, true
		}
	}
	return 0, false
}

// tryInsertCell attempts to place data as a new cell on the page,
// reusing a tombstoned slot when one exists. Reports false if there is
// not enough room.
func tryInsertCell(p *storage.Page, data []byte, flag slotFlag) (slot uint16, ok bool) {
	size := len(data)
	free := freeSpace(p)

	if idx, found := findTombstone(p); found && free >= size {
		newStart := cellStart(p) - uint16(size)
		copy(p.Data[newStart:], data)
		writeSlot(p, idx, slotEntry{offset: newStart, length: uint16(size), flag: flag})
		setCellStart(p, newStart)
		return idx, true
	}

	if free >= slotEntrySize+size {
		newStart := cellStart(p) - uint16(size)
		copy(p.Data[newStart:], data)
		idx := slotCount(p)
		writeSlot(p, idx, slotEntry{offset: newStart, length: uint16(size), flag: flag})
		setSlotCount(p, idx+1)
		setCellStart(p, newStart)
		return idx, true
	}

	return 0, false
}

// maxInPageSize is the largest serialized document this page size can
// hold without spilling to an overflow chain.
func maxInPageSize(pageSize int) int {
	return pageSize - dataHeaderSize - slotEntrySize - 64
}

func newRootPage(id storage.PageID, pageSize int) *storage.Page {
	p := storage.NewPage(id, storage.PageTypeCollectionRoot, pageSize)
	setFirstDataPage(p, 0)
	setDocCount(p, 0)
	return p
}

func firstDataPage(p *storage.Page) storage.PageID {
	return storage.PageID(binary.LittleEndian.Uint64(p.Data[1:9]))
}

func setFirstDataPage(p *storage.Page, id storage.PageID) {
	binary.LittleEndian.PutUint64(p.Data[1:9], uint64(id))
}

func docCount(p *storage.Page) uint64 {
	return binary.LittleEndian.Uint64(p.Data[9:17])
}

func setDocCount(p *storage.Page, n uint64) {
	binary.LittleEndian.PutUint64(p.Data[9:17], n)
}

func newOverflowPage(id storage.PageID, pageSize int) *storage.Page {
	p := storage.NewPage(id, storage.PageTypeOverflow, pageSize)
	setNextOverflow(p, 0)
	return p
}

func nextOverflow(p *storage.Page) storage.PageID {
	return storage.PageID(binary.LittleEndian.Uint64(p.Data[1:9]))
}

func setNextOverflow(p *storage.Page, next storage.PageID) {
	binary.LittleEndian.PutUint64(p.Data[1:9], uint64(next))
}

func overflowPayloadCap(pageSize int) int {
	return pageSize - overflowHeaderSize
}
