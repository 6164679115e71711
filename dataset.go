package ouroboros

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ouroboros-db/ouroboros/internal/olog"
	"github.com/ouroboros-db/ouroboros/internal/ometrics"
	"github.com/ouroboros-db/ouroboros/record"
	"github.com/ouroboros-db/ouroboros/table"
	"github.com/ouroboros-db/ouroboros/txfile"
)

// Dataset is the header + key table + N data tables described by spec.md
// §4.K, region-mapped onto one backing file plus its backup and journal
// siblings. Every data table shares the same record type R and record
// size: tables within a dataset are distinguished by key (and therefore by
// table-region slot), not by schema, matching §3's single info header
// carrying one rec_count for the whole file.
type Dataset[R record.Record] struct {
	cfg  Config
	path string
	ctx  *DatasetContext

	file       *txfile.JournalFile
	backupRaw  txfile.File
	journalRaw txfile.File
	region     *txfile.Region

	infoSize  int64
	keySize   int64
	tableSize int64
	tblCount  uint32
	recCount  uint32
	recSize   int
	newRecord func() R

	mu        sync.Mutex
	tables    map[uint64]*table.Table[R]
	freeSlots []int

	txMu    sync.Mutex
	txDepth int

	closed bool
}

// datasetBackend adapts one table-region slot of a Dataset's file stack to
// table.Backend, translating a table-local slot offset into the dataset
// file's raw logical offset (§4.K's "table0 | table1 | ..." layout).
type datasetBackend[R record.Record] struct {
	ds   *Dataset[R]
	slot int
}

func (b *datasetBackend[R]) ReadAt(buf []byte, slotOffset int64) error {
	return b.ds.rawRead(b.ds.rawTableOffset(b.slot)+slotOffset, buf)
}

func (b *datasetBackend[R]) WriteAt(buf []byte, slotOffset int64) error {
	return b.ds.rawWrite(b.ds.rawTableOffset(b.slot)+slotOffset, buf)
}

// Open opens an existing dataset at path or creates a fresh one sized for
// tblCount tables of recCount records each, matching spec.md §4.K's
// open/create sequence. newRecord must return a freshly zeroed R.
func Open[R record.Record](path string, tblCount, recCount uint32, newRecord func() R, cfg Config) (*Dataset[R], error) {
	const op = "Dataset.Open"
	cfg = cfg.withDefaults()
	if cfg.CrossProcess {
		return nil, newError(op, KindBug, ErrCrossProcess)
	}
	if tblCount == 0 || recCount == 0 {
		return nil, newError(op, KindBug, fmt.Errorf("tbl_count and rec_count must both be positive"))
	}

	recSize := newRecord().StaticSize()
	infoSize := int64(infoRecordSize)
	keySize := int64(tblCount) * int64(keyRecordSize)
	tableSize := int64(recCount) * int64(recSize)

	dataFile, err := txfile.OpenFile(path)
	if err != nil {
		return nil, newError(op, KindIO, err)
	}
	size, err := dataFile.Size()
	if err != nil {
		dataFile.Close()
		return nil, newError(op, KindIO, err)
	}
	fresh := size == 0

	pageDataSize := txfile.PageDataSize(cfg.PageSize, cfg.ChecksumAlgorithm)
	region := txfile.NewRegion(cfg.PageSize, pageDataSize, infoSize, keySize, tableSize)
	cachedFile, err := txfile.NewCachedFile(dataFile, region, cfg.PageSize, cfg.PoolCapacity, cfg.ChecksumAlgorithm)
	if err != nil {
		dataFile.Close()
		return nil, newError(op, KindIO, err)
	}

	backupRaw, err := txfile.OpenFile(path + ".bak")
	if err != nil {
		dataFile.Close()
		return nil, newError(op, KindIO, err)
	}
	backupFile := txfile.NewBackupFile(cachedFile, backupRaw, cfg.CompressBackupPages)

	journalRaw, err := txfile.OpenFile(path + ".journal")
	if err != nil {
		dataFile.Close()
		backupRaw.Close()
		return nil, newError(op, KindIO, err)
	}

	dataSize := cfg.PageSize
	if cfg.ChecksumAlgorithm != 0 {
		dataSize -= txfile.ChecksumSize
	}
	totalVirtual := infoSize + keySize + int64(tblCount)*tableSize
	// Page indexes count pages of virtual content (region padding does not
	// shift them), so the highest index is (totalVirtual-1)/dataSize; the
	// +2 covers it with one page to spare.
	pageCount := int(totalVirtual/int64(dataSize)) + 2
	journalFile := txfile.NewJournalFile(backupFile, journalRaw, pageCount)

	replayed, err := journalFile.Init()
	if err != nil {
		dataFile.Close()
		backupRaw.Close()
		journalRaw.Close()
		return nil, newError(op, KindIO, err)
	}
	if replayed {
		ometrics.JournalRecoveriesTotal.WithLabelValues(path).Inc()
	}

	ds := &Dataset[R]{
		cfg:        cfg,
		path:       path,
		ctx:        newDatasetContext(),
		file:       journalFile,
		backupRaw:  backupRaw,
		journalRaw: journalRaw,
		region:     region,
		infoSize:   infoSize,
		keySize:    keySize,
		tableSize:  tableSize,
		tblCount:   tblCount,
		recCount:   recCount,
		recSize:    recSize,
		newRecord:  newRecord,
		tables:     make(map[uint64]*table.Table[R]),
	}

	if fresh {
		if err := ds.format(); err != nil {
			return nil, newError(op, KindIO, err)
		}
	} else if err := ds.loadInfo(); err != nil {
		return nil, err
	}

	if err := ds.loadKeys(); err != nil {
		return nil, newError(op, KindIO, err)
	}

	olog.Logger.Info().
		Str("path", path).
		Uint32("tbl_count", tblCount).
		Uint32("rec_count", recCount).
		Bool("fresh", fresh).
		Msg("dataset opened")
	return ds, nil
}

// format writes a freshly created dataset's info header and tombstoned
// key slots, matching spec.md §4.K step 1's "create it sized to hold
// info + tbl_count * (key + table)". The table regions themselves need no
// initialization: every table starts Empty with Beg=Count=0, which is the
// zero value table.Meta already assumes.
func (ds *Dataset[R]) format() error {
	ds.beginFileTxn()
	info := infoRecord{Version: infoFormatVersion, TblCount: ds.tblCount, RecCount: ds.recCount}
	if err := ds.rawWrite(0, info.Pack(nil)); err != nil {
		ds.cancelFileTxn()
		return err
	}
	tomb := keyRecord{Pos: -1, Root: NilPos}
	buf := tomb.Pack(nil)
	for i := uint32(0); i < ds.tblCount; i++ {
		if err := ds.rawWrite(ds.rawKeyOffset(int(i)), buf); err != nil {
			ds.cancelFileTxn()
			return err
		}
	}
	return ds.commitFileTxn()
}

// loadInfo reads an existing dataset's info header and validates it
// against the caller-requested schema, matching spec.md §4.K step 2.
func (ds *Dataset[R]) loadInfo() error {
	const op = "Dataset.Open"
	buf := make([]byte, infoRecordSize)
	if err := ds.rawRead(0, buf); err != nil {
		return newError(op, KindIO, err)
	}
	var info infoRecord
	info.Unpack(buf)
	if info.Version != infoFormatVersion {
		return newError(op, KindVersion, ErrVersionMismatch)
	}
	if info.TblCount != ds.tblCount || info.RecCount != ds.recCount {
		return newError(op, KindBug, fmt.Errorf(
			"dataset schema mismatch: on disk tbl_count=%d rec_count=%d, requested %d/%d",
			info.TblCount, info.RecCount, ds.tblCount, ds.recCount))
	}
	return nil
}

// loadKeys scans the key region and builds the shadow map and free-slot
// list, matching spec.md §4.K step 3. A key's Pos field is authoritative
// for its table-region slot, so no separate key->slot index is kept.
func (ds *Dataset[R]) loadKeys() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	buf := make([]byte, keyRecordSize)
	for i := uint32(0); i < ds.tblCount; i++ {
		if err := ds.rawRead(ds.rawKeyOffset(int(i)), buf); err != nil {
			return err
		}
		var rec keyRecord
		rec.Unpack(buf)
		if rec.tombstoned() {
			ds.freeSlots = append(ds.freeSlots, int(i))
			continue
		}
		ds.ctx.shadowPut(rec.Key, rec)
	}
	return nil
}

func (ds *Dataset[R]) rawKeyOffset(slot int) int64 {
	return ds.infoSize + int64(slot)*keyRecordSize
}

func (ds *Dataset[R]) rawTableOffset(slot int) int64 {
	return ds.infoSize + ds.keySize + int64(slot)*ds.tableSize
}

func (ds *Dataset[R]) rawRead(pos int64, buf []byte) error  { return ds.file.ReadAt(buf, pos) }
func (ds *Dataset[R]) rawWrite(pos int64, buf []byte) error { return ds.file.WriteAt(buf, pos) }

func (ds *Dataset[R]) readInfo() (infoRecord, error) {
	buf := make([]byte, infoRecordSize)
	if err := ds.rawRead(0, buf); err != nil {
		return infoRecord{}, err
	}
	var info infoRecord
	info.Unpack(buf)
	return info, nil
}

// beginFileTxn, commitFileTxn and cancelFileTxn implement spec.md §4.L's
// "nested transactions on the same dataset are observed but only the
// outermost drives the file state": every Session/Transaction Start/Stop
// goes through these rather than calling ds.file directly, so the shared
// cache only ever sees one real Start/Stop/Cancel per top-level operation.
func (ds *Dataset[R]) beginFileTxn() {
	ds.txMu.Lock()
	defer ds.txMu.Unlock()
	ds.txDepth++
	if ds.txDepth == 1 {
		ds.file.Start()
	}
}

func (ds *Dataset[R]) commitFileTxn() error {
	ds.txMu.Lock()
	defer ds.txMu.Unlock()
	if ds.txDepth == 0 {
		return newError("Dataset.commit", KindBug, ErrNotStarted)
	}
	ds.txDepth--
	if ds.txDepth > 0 {
		return nil
	}
	if err := ds.file.Stop(); err != nil {
		return newError("Dataset.commit", KindIO, err)
	}
	if ds.cfg.SyncOnCommit {
		if err := ds.file.Sync(); err != nil {
			return newError("Dataset.commit", KindIO, err)
		}
	}
	ometrics.TransactionsCommittedTotal.WithLabelValues(ds.path).Inc()
	return nil
}

// cancelFileTxn aborts the whole shared transaction regardless of nesting
// depth: the backup/journal layers below track exactly one in-flight
// generation of pre-images, so a cancel at any nesting level must discard
// everything, not just the innermost scope's writes.
func (ds *Dataset[R]) cancelFileTxn() {
	ds.txMu.Lock()
	defer ds.txMu.Unlock()
	if ds.txDepth == 0 {
		return
	}
	ds.txDepth = 0
	ds.file.Cancel()
	ometrics.TransactionsCanceledTotal.WithLabelValues(ds.path).Inc()
}

// tableFor returns the Table for key, constructing it on first reference
// from the key's shadow record, matching spec.md §4.K step 4's "construct
// each present data table on demand".
func (ds *Dataset[R]) tableFor(key uint64) (*table.Table[R], error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if tbl, ok := ds.tables[key]; ok {
		return tbl, nil
	}
	rec, ok := ds.ctx.shadowGet(key)
	if !ok {
		return nil, newError("Dataset.tableFor", KindRange, ErrTableNotFound)
	}
	meta := &table.Meta{Beg: rec.Beg, Count: rec.Count, RecCount: ds.recCount}
	backend := &datasetBackend[R]{ds: ds, slot: int(rec.Pos)}
	tbl := table.New[R](meta, backend, ds.newRecord)
	ds.tables[key] = tbl
	return tbl, nil
}

// persistKey writes a write session's final Beg/Count (and, if set, Root)
// back into the key's on-disk and shadow record at Stop, bumping Rev,
// matching spec.md §3's "rev strictly increases on every mutating commit".
func (ds *Dataset[R]) persistKey(key uint64, treeRoot *uint32) error {
	ds.mu.Lock()
	tbl, ok := ds.tables[key]
	ds.mu.Unlock()
	if !ok {
		return newError("Dataset.persistKey", KindBug, ErrTableNotFound)
	}
	rec, ok := ds.ctx.shadowGet(key)
	if !ok {
		return newError("Dataset.persistKey", KindBug, ErrTableNotFound)
	}
	rec.Beg = tbl.BegPos()
	rec.Count = tbl.Count()
	rec.Rev++
	if treeRoot != nil {
		rec.Root = *treeRoot
	}
	if err := ds.rawWrite(ds.rawKeyOffset(int(rec.Pos)), rec.Pack(nil)); err != nil {
		return newError("Dataset.persistKey", KindIO, err)
	}
	ds.ctx.shadowPut(key, rec)
	return nil
}

// reloadTable rolls a write session's table back to its last-persisted
// Beg/Count after a Cancel, since table.Table itself has no notion of a
// transaction to undo.
func (ds *Dataset[R]) reloadTable(key uint64) {
	ds.mu.Lock()
	tbl, ok := ds.tables[key]
	ds.mu.Unlock()
	if !ok {
		return
	}
	rec, ok := ds.ctx.shadowGet(key)
	if !ok {
		return
	}
	tbl.ResetMeta(rec.Beg, rec.Count)
}

// AddTable finds the lowest-indexed free slot, writes a fresh key record
// into it, and bumps key_count, matching spec.md §4.K/§6 invariant (ii).
func (ds *Dataset[R]) AddTable(key uint64) error {
	const op = "Dataset.AddTable"
	if _, exists := ds.ctx.shadowGet(key); exists {
		return newError(op, KindBug, ErrTableExists)
	}

	owner := newOwner()
	if !ds.ctx.datasetLock.LockTimeout(owner, ds.cfg.LockTimeout) {
		return newError(op, KindLock, ErrLockTimeout)
	}
	defer ds.ctx.datasetLock.Unlock(owner)

	ds.mu.Lock()
	if len(ds.freeSlots) == 0 {
		ds.mu.Unlock()
		return newError(op, KindBug, ErrDatasetFull)
	}
	sort.Ints(ds.freeSlots)
	slot := ds.freeSlots[0]
	ds.freeSlots = ds.freeSlots[1:]
	ds.mu.Unlock()

	ds.beginFileTxn()
	rec := keyRecord{Key: key, Pos: int32(slot), Root: NilPos}
	if err := ds.rawWrite(ds.rawKeyOffset(slot), rec.Pack(nil)); err != nil {
		ds.cancelFileTxn()
		ds.releaseSlot(slot)
		return newError(op, KindIO, err)
	}
	info, err := ds.readInfo()
	if err != nil {
		ds.cancelFileTxn()
		ds.releaseSlot(slot)
		return newError(op, KindIO, err)
	}
	info.KeyCount++
	if err := ds.rawWrite(0, info.Pack(nil)); err != nil {
		ds.cancelFileTxn()
		ds.releaseSlot(slot)
		return newError(op, KindIO, err)
	}
	if err := ds.commitFileTxn(); err != nil {
		ds.releaseSlot(slot)
		return err
	}

	ds.ctx.shadowPut(key, rec)
	return nil
}

// releaseSlot returns slot to the free-slot pool after a failed AddTable,
// so a transient I/O error doesn't permanently strand the slot until the
// next process restart's loadKeys rebuild.
func (ds *Dataset[R]) releaseSlot(slot int) {
	ds.mu.Lock()
	ds.freeSlots = append(ds.freeSlots, slot)
	ds.mu.Unlock()
}

// RemoveTable tombstones key's slot, leaving its table region intact for
// reuse by a future AddTable, matching spec.md §4.K/§6 invariant (ii).
func (ds *Dataset[R]) RemoveTable(key uint64) error {
	const op = "Dataset.RemoveTable"
	rec, exists := ds.ctx.shadowGet(key)
	if !exists {
		return newError(op, KindRange, ErrTableNotFound)
	}

	owner := newOwner()
	if !ds.ctx.datasetLock.LockTimeout(owner, ds.cfg.LockTimeout) {
		return newError(op, KindLock, ErrLockTimeout)
	}
	defer ds.ctx.datasetLock.Unlock(owner)

	slot := int(rec.Pos)
	rec.Pos = -1

	ds.beginFileTxn()
	if err := ds.rawWrite(ds.rawKeyOffset(slot), rec.Pack(nil)); err != nil {
		ds.cancelFileTxn()
		return newError(op, KindIO, err)
	}
	if err := ds.commitFileTxn(); err != nil {
		return err
	}

	ds.mu.Lock()
	ds.freeSlots = append(ds.freeSlots, slot)
	delete(ds.tables, key)
	ds.mu.Unlock()
	ds.ctx.shadowDelete(key)
	return nil
}

// TableExists reports whether key names a live table, O(1) against the
// shadow map, matching spec.md §4.K.
func (ds *Dataset[R]) TableExists(key uint64) bool {
	_, ok := ds.ctx.shadowGet(key)
	return ok
}

// SessionRd opens a standalone sharable (read-only) session on key's
// table, matching spec.md §4.K's session_rd.
func (ds *Dataset[R]) SessionRd(key uint64) (*Session[R], error) {
	return newSession(ds, key, newOwner(), false, true)
}

// SessionWr opens a standalone scoped (exclusive) session on key's table,
// matching spec.md §4.K's session_wr: construction acquires the global
// lazy lock sharably, then the per-table lock exclusively.
func (ds *Dataset[R]) SessionWr(key uint64) (*Session[R], error) {
	return newSession(ds, key, newOwner(), true, true)
}

// Close flushes and releases every file in the dataset's stack. Close is
// not itself guarded by the dataset lock: callers must ensure no session
// or transaction is still open.
func (ds *Dataset[R]) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return nil
	}
	ds.closed = true

	var firstErr error
	if err := ds.file.Sync(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := ds.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := ds.backupRaw.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := ds.journalRaw.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return newError("Dataset.Close", KindIO, firstErr)
	}
	return nil
}
