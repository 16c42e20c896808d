package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var dataDir = "DATA"

// getSheetFilePath returns the file path for a sheet
func getSheetFilePath(sheetID string) string {
	return filepath.Join(dataDir, sheetID+".json")
}

// ensureDataDir creates the DATA directory if it doesn't exist
func ensureDataDir() error {
	return os.MkdirAll(dataDir, 0755)
}

type Cell struct {
	Value      string `json:"value"`
	User       string `json:"user,omitempty"` // Last edited by
	Locked     bool   `json:"locked,omitempty"`
	LockedBy   string `json:"locked_by,omitempty"`
	Background string `json:"background,omitempty"`
	Bold       bool   `json:"bold,omitempty"`
	Italic     bool   `json:"italic,omitempty"`
}

type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Action    string    `json:"action"` // e.g., "EDIT_CELL", "SET_FILTER_RANGE"
	Details   string    `json:"details"`
}

type Permissions struct {
	Editors []string `json:"editors"`
}

type Sheet struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	Owner       string                     `json:"owner"`
	Data        map[string]map[string]Cell `json:"data"` // Row -> Col -> Cell
	AuditLog    []AuditEntry               `json:"audit_log"`
	Permissions Permissions                `json:"permissions"`
	ColWidths   map[string]int             `json:"col_widths,omitempty"`
	RowHeights  map[string]int             `json:"row_heights,omitempty"`

	// Persisted filter state. Filter mirrors the runtime model's serialized
	// record; HiddenRows mirrors its merged excluded rows. Both are kept in
	// sync by the filter mutation methods below so plain JSON encoding of
	// the sheet always carries the current filter.
	Filter     *FilterRangeRecord `json:"filter,omitempty"`
	HiddenRows []int              `json:"hiddenRows,omitempty"`

	mu     sync.RWMutex
	filter *FilterModel // runtime model, rebuilt from Filter on load
}

// IsEditor returns true if user is the owner or listed as an editor.
func (s *Sheet) IsEditor(user string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user == "" {
		return false
	}
	if user == s.Owner {
		return true
	}
	for _, e := range s.Permissions.Editors {
		if e == user {
			return true
		}
	}
	return false
}

// columnLabel converts a 1-based column index to its letter label (1 -> A).
func columnLabel(idx int) string {
	label := ""
	for idx > 0 {
		idx--
		b := byte(int('A') + (idx % 26))
		label = string([]byte{b}) + label
		idx /= 26
	}
	return label
}

// columnIndex converts a letter label to its 1-based index (A -> 1).
// Returns 0 for an invalid label.
func columnIndex(label string) int {
	idx := 0
	for i := 0; i < len(label); i++ {
		if label[i] < 'A' || label[i] > 'Z' {
			return 0
		}
		idx = idx*26 + int(label[i]-'A'+1)
	}
	return idx
}

func parseRow(rowStr string) (int, bool) {
	r, err := strconv.Atoi(rowStr)
	if err != nil || r < 1 {
		return 0, false
	}
	return r, true
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

// filterCellValue implements cellValueReader for the filter engine. The
// caller must already hold the sheet lock; filter recalculation always runs
// inside the sheet's own mutation methods.
func (s *Sheet) filterCellValue(row, col int) (string, bool) {
	rowMap, ok := s.Data[itoa(row)]
	if !ok {
		return "", false
	}
	cell, ok := rowMap[columnLabel(col)]
	if !ok {
		return "", false
	}
	return cell.Value, true
}

// ----- Filter state -----

// ensureFilterLocked lazily creates the runtime filter model and wires the
// sheet's persisted fields to its change notifications.
func (s *Sheet) ensureFilterLocked() *FilterModel {
	if s.filter != nil {
		return s.filter
	}
	fm := NewFilterModel(s.ID, s)
	fm.OnFilteredRowsChanged(func(rows []int) {
		s.HiddenRows = rows
	})
	fm.OnHasCriteriaChanged(func(has bool) {
		action := "FILTER_ACTIVE"
		if !has {
			action = "FILTER_IDLE"
		}
		s.AuditLog = append(s.AuditLog, AuditEntry{
			Timestamp: time.Now(),
			User:      "system",
			Action:    action,
			Details:   fmt.Sprintf("Filter criteria present: %v", has),
		})
	})
	s.filter = fm
	return fm
}

// syncFilterLocked refreshes the persisted filter fields from the runtime
// model. Caller holds the write lock.
func (s *Sheet) syncFilterLocked() {
	if s.filter == nil {
		s.Filter = nil
		s.HiddenRows = nil
		return
	}
	rec, err := s.filter.Serialize()
	if err != nil {
		log.Printf("Error serializing filter for sheet %s: %v", s.ID, err)
		return
	}
	s.Filter = rec
	s.HiddenRows = rec.CachedFilteredOut
}

// initFilterFromRecord rebuilds the runtime filter model after a sheet was
// decoded from disk. A corrupt record is dropped rather than failing the
// whole load; the error is logged.
func (s *Sheet) initFilterFromRecord() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Filter == nil {
		return
	}
	fm, err := NewFilterModelFromRecord(s.ID, s, s.Filter)
	if err != nil {
		log.Printf("Error restoring filter for sheet %s: %v", s.ID, err)
		s.Filter = nil
		s.HiddenRows = nil
		return
	}
	fm.OnFilteredRowsChanged(func(rows []int) {
		s.HiddenRows = rows
	})
	s.filter = fm
}

// SetFilterRange establishes or replaces the sheet's filter range.
func (s *Sheet) SetFilterRange(rng FilterRange, user string) error {
	s.mu.Lock()
	fm := s.ensureFilterLocked()
	if err := fm.SetRange(rng); err != nil {
		s.mu.Unlock()
		return err
	}
	s.syncFilterLocked()
	s.AuditLog = append(s.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "SET_FILTER_RANGE",
		Details: fmt.Sprintf("Filter range %s%d:%s%d",
			columnLabel(rng.StartColumn), rng.StartRow, columnLabel(rng.EndColumn), rng.EndRow),
	})
	s.mu.Unlock()
	globalSheetManager.SaveSheet(s)
	return nil
}

// SetFilterCriteria sets or clears (criteria nil) the filter criteria at
// the given column offset. With recalc true the change is applied to row
// visibility immediately.
func (s *Sheet) SetFilterCriteria(offset int, criteria *ColumnCriteria, recalc bool, user string) error {
	s.mu.Lock()
	if s.filter == nil {
		s.mu.Unlock()
		return fmt.Errorf("sheet %s has no filter", s.ID)
	}
	if err := s.filter.SetCriteria(offset, criteria, recalc); err != nil {
		s.mu.Unlock()
		return err
	}
	s.syncFilterLocked()
	detail := "Cleared criteria"
	if criteria != nil {
		detail = "Set criteria"
	}
	s.AuditLog = append(s.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "SET_FILTER_CRITERIA",
		Details:   fmt.Sprintf("%s on filter column %d", detail, offset),
	})
	s.mu.Unlock()
	globalSheetManager.SaveSheet(s)
	return nil
}

// RecalcFilter recomputes the whole filter from live cell values.
func (s *Sheet) RecalcFilter(user string) error {
	s.mu.Lock()
	if s.filter == nil {
		s.mu.Unlock()
		return fmt.Errorf("sheet %s has no filter", s.ID)
	}
	if err := s.filter.ReCalc(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.syncFilterLocked()
	s.mu.Unlock()
	globalSheetManager.SaveSheet(s)
	return nil
}

// RemoveFilter drops the filter entirely. Returns false if none was set.
func (s *Sheet) RemoveFilter(user string) bool {
	s.mu.Lock()
	if s.filter == nil {
		s.mu.Unlock()
		return false
	}
	s.filter = nil
	s.Filter = nil
	s.HiddenRows = nil
	s.AuditLog = append(s.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "REMOVE_FILTER",
		Details:   "Removed filter",
	})
	s.mu.Unlock()
	globalSheetManager.SaveSheet(s)
	return true
}

// IsRowFiltered reports whether the row is hidden by the filter.
func (s *Sheet) IsRowFiltered(row int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.filter == nil {
		return false
	}
	return s.filter.IsRowFiltered(row)
}

// HiddenRowsSnapshot returns a copy of the rows the filter currently hides.
// HiddenRows itself is written under the write lock by the filter mutation
// methods, so concurrent readers must come through here.
func (s *Sheet) HiddenRowsSnapshot() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.HiddenRows == nil {
		return nil
	}
	rows := make([]int, len(s.HiddenRows))
	copy(rows, s.HiddenRows)
	return rows
}

// FilterRecord returns the serialized filter, or nil when none is set.
func (s *Sheet) FilterRecord() *FilterRangeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.filter == nil {
		return nil
	}
	rec, err := s.filter.Serialize()
	if err != nil {
		log.Printf("Error serializing filter for sheet %s: %v", s.ID, err)
		return nil
	}
	return rec
}

// adjustFilterLocked runs one structural-edit translation against the
// filter model and refreshes persisted state. Caller holds the write lock.
func (s *Sheet) adjustFilterLocked(translate func(*FilterAdapter) (*FilterMutationPair, bool, error)) *FilterMutationPair {
	if s.filter == nil {
		return nil
	}
	pair, removed, err := translate(newFilterAdapter(s.filter))
	if err != nil {
		log.Printf("Error adjusting filter for sheet %s: %v", s.ID, err)
		return nil
	}
	if removed {
		s.filter = nil
		s.Filter = nil
		s.HiddenRows = nil
		return pair
	}
	s.syncFilterLocked()
	return pair
}

// ----- Sheet manager -----

type SheetManager struct {
	sheets map[string]*Sheet
	mu     sync.RWMutex
}

var globalSheetManager = &SheetManager{
	sheets: make(map[string]*Sheet),
}

// Helper to save a single sheet without locking the manager (caller must hold lock)
func (sm *SheetManager) saveSheetLocked(sheet *Sheet) {
	if err := ensureDataDir(); err != nil {
		log.Printf("Error creating data directory: %v", err)
		return
	}
	file, err := os.Create(getSheetFilePath(sheet.ID))
	if err != nil {
		log.Printf("Error saving sheet %s: %v", sheet.ID, err)
		return
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(sheet); err != nil {
		log.Printf("Error encoding sheet %s: %v", sheet.ID, err)
	}
}

// MarshalJSON implementation for Sheet to ensure thread-safe encoding
func (s *Sheet) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type Alias Sheet
	return json.Marshal(&struct {
		*Alias
	}{
		Alias: (*Alias)(s),
	})
}

// Simple ID generator
func generateID() string {
	return time.Now().Format("20060102150405")
}

func (sm *SheetManager) CreateSheet(name, owner string) *Sheet {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	id := generateID()
	sheet := &Sheet{
		ID:         id,
		Name:       name,
		Owner:      owner,
		Data:       make(map[string]map[string]Cell),
		ColWidths:  make(map[string]int),
		RowHeights: make(map[string]int),
		Permissions: Permissions{
			Editors: []string{owner},
		},
		AuditLog: []AuditEntry{},
	}

	// Initial Audit
	sheet.AuditLog = append(sheet.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      owner,
		Action:    "CREATE_SHEET",
		Details:   "Created sheet " + name,
	})

	sm.sheets[id] = sheet
	sm.saveSheetLocked(sheet)
	return sheet
}

func (sm *SheetManager) GetSheet(id string) *Sheet {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sheets[id]
}

func (sm *SheetManager) ListSheets() []*Sheet {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	list := make([]*Sheet, 0, len(sm.sheets))
	for _, sheet := range sm.sheets {
		list = append(list, sheet)
	}
	return list
}

func (sm *SheetManager) RenameSheet(id, newName, user string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sheet, ok := sm.sheets[id]
	if !ok {
		return false
	}

	sheet.mu.Lock()
	oldName := sheet.Name
	sheet.Name = newName
	sheet.AuditLog = append(sheet.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "RENAME_SHEET",
		Details:   "Renamed sheet from '" + oldName + "' to '" + newName + "'",
	})
	sheet.mu.Unlock()

	sm.saveSheetLocked(sheet)
	return true
}

func (sm *SheetManager) DeleteSheet(id string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.sheets[id]; !ok {
		return false
	}
	delete(sm.sheets, id)

	if err := os.Remove(getSheetFilePath(id)); err != nil {
		log.Printf("Error deleting sheet file %s: %v", getSheetFilePath(id), err)
	}
	return true
}

func (sm *SheetManager) SaveSheet(sheet *Sheet) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.saveSheetLocked(sheet)
}

func (sm *SheetManager) Save() {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	// Save all sheets
	for _, sheet := range sm.sheets {
		sm.saveSheetLocked(sheet)
	}
}

func (sm *SheetManager) Load() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Check if DATA directory exists
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		log.Println("DATA directory does not exist, starting fresh")
		return
	}

	loadedCount := 0
	files, err := filepath.Glob(filepath.Join(dataDir, "*.json"))
	if err != nil {
		log.Printf("Error listing %s: %v", dataDir, err)
		return
	}
	for _, filePath := range files {
		base := filepath.Base(filePath)
		// Skip non-sheet files like users.json
		if base == "users.json" {
			continue
		}
		file, err := os.Open(filePath)
		if err != nil {
			log.Printf("Error opening sheet file %s: %v", filePath, err)
			continue
		}
		var sheet Sheet
		if err := json.NewDecoder(file).Decode(&sheet); err != nil {
			log.Printf("Error decoding sheet file %s: %v", filePath, err)
			file.Close()
			continue
		}
		file.Close()
		sheet.initFilterFromRecord()
		sm.sheets[sheet.ID] = &sheet
		loadedCount++
	}

	log.Printf("Loaded %d sheets from disk", loadedCount)
}

// ----- Cell operations -----

func (s *Sheet) SetCell(row, col, value, user string) {
	s.mu.Lock()

	if s.Data[row] == nil {
		s.Data[row] = make(map[string]Cell)
	}
	currentVal, exists := s.Data[row][col]
	// Prevent edits to locked cells
	if exists && currentVal.Locked {
		s.AuditLog = append(s.AuditLog, AuditEntry{
			Timestamp: time.Now(),
			User:      user,
			Action:    "EDIT_DENIED",
			Details:   "Attempted edit on locked cell " + row + "," + col,
		})
		s.mu.Unlock()
		return
	}
	if exists && currentVal.Value == value {
		// No change
		s.mu.Unlock()
		return
	}
	// Preserve existing lock metadata on write
	s.Data[row][col] = Cell{Value: value, User: user, Locked: currentVal.Locked, LockedBy: currentVal.LockedBy, Background: currentVal.Background, Bold: currentVal.Bold, Italic: currentVal.Italic}
	if exists {
		s.AuditLog = append(s.AuditLog, AuditEntry{
			Timestamp: time.Now(),
			User:      user,
			Action:    "EDIT_CELL",
			Details:   "Changed cell " + row + "," + col + " from " + currentVal.Value + " to " + value,
		})
	} else {
		s.AuditLog = append(s.AuditLog, AuditEntry{
			Timestamp: time.Now(),
			User:      user,
			Action:    "EDIT_CELL",
			Details:   "Set cell " + row + "," + col + " to " + value,
		})
	}

	// An edit inside the filtered range may change which rows pass.
	s.recalcFilterForCellLocked(row, col)

	s.mu.Unlock() // Unlock BEFORE saving to avoid deadlock (Save -> MarshalJSON -> tries RLock)

	// Persist changes
	// Optimally we shouldn't save on every cell edit for performance, but for this task it ensures safety.
	globalSheetManager.SaveSheet(s)
}

// recalcFilterForCellLocked recomputes the filter when the edited cell lies
// inside the filtered range. Caller holds the write lock.
func (s *Sheet) recalcFilterForCellLocked(rowStr, colStr string) {
	if s.filter == nil {
		return
	}
	rng, err := s.filter.GetRange()
	if err != nil {
		return
	}
	row, ok := parseRow(rowStr)
	if !ok {
		return
	}
	col := columnIndex(colStr)
	if row <= rng.StartRow || row > rng.EndRow || col < rng.StartColumn || col > rng.EndColumn {
		return
	}
	if err := s.filter.ReCalc(); err != nil {
		log.Printf("Error recalculating filter for sheet %s: %v", s.ID, err)
		return
	}
	s.syncFilterLocked()
}

// SetCellStyle updates style attributes for a cell while preserving value and lock metadata.
func (s *Sheet) SetCellStyle(row, col, background string, bold, italic bool, user string) {
	s.mu.Lock()
	if s.Data[row] == nil {
		s.Data[row] = make(map[string]Cell)
	}
	current, exists := s.Data[row][col]
	// Prevent edits to locked cells' style if locked
	if exists && current.Locked {
		s.AuditLog = append(s.AuditLog, AuditEntry{
			Timestamp: time.Now(),
			User:      user,
			Action:    "STYLE_DENIED",
			Details:   "Attempted style change on locked cell " + row + "," + col,
		})
		s.mu.Unlock()
		return
	}
	// Apply style while preserving existing value and lock info
	updated := current
	updated.User = user
	updated.Background = background
	updated.Bold = bold
	updated.Italic = italic
	s.Data[row][col] = updated

	s.AuditLog = append(s.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "STYLE_CELL",
		Details:   "Updated style for cell " + row + "," + col,
	})
	s.mu.Unlock()
	globalSheetManager.SaveSheet(s)
}

// IsCellLocked returns whether the given cell is locked.
func (s *Sheet) IsCellLocked(row, col string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Data[row] == nil {
		return false
	}
	c, ok := s.Data[row][col]
	if !ok {
		return false
	}
	return c.Locked
}

// LockCell locks a cell. Only the sheet owner may lock.
func (s *Sheet) LockCell(row, col, user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user != s.Owner {
		return false
	}
	if s.Data[row] == nil {
		s.Data[row] = make(map[string]Cell)
	}
	cell := s.Data[row][col]
	if cell.Locked {
		return true // already locked
	}
	cell.Locked = true
	cell.LockedBy = user
	s.Data[row][col] = cell
	s.AuditLog = append(s.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "LOCK_CELL",
		Details:   "Locked cell " + row + "," + col,
	})
	// Save after unlock via manager
	go globalSheetManager.SaveSheet(s)
	return true
}

// UnlockCell unlocks a cell. Only the sheet owner may unlock.
func (s *Sheet) UnlockCell(row, col, user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user != s.Owner {
		return false
	}
	cell, ok := s.Data[row][col]
	if !ok {
		return false
	}
	if !cell.Locked {
		return true // already unlocked
	}
	cell.Locked = false
	cell.LockedBy = ""
	s.Data[row][col] = cell
	s.AuditLog = append(s.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "UNLOCK_CELL",
		Details:   "Unlocked cell " + row + "," + col,
	})
	// Save after unlock via manager
	go globalSheetManager.SaveSheet(s)
	return true
}

func (s *Sheet) SetColWidth(col string, width int, user string) {
	s.mu.Lock()
	// ensure map
	if s.ColWidths == nil {
		s.ColWidths = make(map[string]int)
	}
	s.ColWidths[col] = width

	s.AuditLog = append(s.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "RESIZE_COL",
		Details:   "Set width of column " + col + " to " + itoa(width),
	})
	s.mu.Unlock()

	globalSheetManager.SaveSheet(s)
}

func (s *Sheet) SetRowHeight(row string, height int, user string) {
	s.mu.Lock()
	if s.RowHeights == nil {
		s.RowHeights = make(map[string]int)
	}
	s.RowHeights[row] = height

	s.AuditLog = append(s.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "RESIZE_ROW",
		Details:   "Set height of row " + row + " to " + itoa(height),
	})
	s.mu.Unlock()

	globalSheetManager.SaveSheet(s)
}

// ----- Structural edits -----

// maxRowLocked returns the highest populated row number.
func (s *Sheet) maxRowLocked() int {
	maxRow := 0
	for rowKey := range s.Data {
		if r, ok := parseRow(rowKey); ok && r > maxRow {
			maxRow = r
		}
	}
	for rowKey := range s.RowHeights {
		if r, ok := parseRow(rowKey); ok && r > maxRow {
			maxRow = r
		}
	}
	return maxRow
}

// maxColLocked returns the highest populated 1-based column index.
func (s *Sheet) maxColLocked() int {
	maxIdx := 0
	for col := range s.ColWidths {
		if idx := columnIndex(col); idx > maxIdx {
			maxIdx = idx
		}
	}
	for _, rowMap := range s.Data {
		for col := range rowMap {
			if idx := columnIndex(col); idx > maxIdx {
				maxIdx = idx
			}
		}
	}
	return maxIdx
}

// shiftRowLocked moves row from to row to, replacing whatever was at to.
func (s *Sheet) shiftRowLocked(from, to int) {
	fromKey, toKey := itoa(from), itoa(to)
	if rowData, ok := s.Data[fromKey]; ok {
		delete(s.Data, fromKey)
		s.Data[toKey] = rowData
	} else {
		delete(s.Data, toKey)
	}
	if h, ok := s.RowHeights[fromKey]; ok {
		delete(s.RowHeights, fromKey)
		s.RowHeights[toKey] = h
	} else {
		delete(s.RowHeights, toKey)
	}
}

// shiftColLocked moves column from to column to, replacing whatever was at to.
func (s *Sheet) shiftColLocked(from, to int) {
	fromLabel, toLabel := columnLabel(from), columnLabel(to)
	for _, rowMap := range s.Data {
		if cell, ok := rowMap[fromLabel]; ok {
			rowMap[toLabel] = cell
			delete(rowMap, fromLabel)
		} else {
			delete(rowMap, toLabel)
		}
	}
	if w, ok := s.ColWidths[fromLabel]; ok {
		delete(s.ColWidths, fromLabel)
		s.ColWidths[toLabel] = w
	} else {
		delete(s.ColWidths, toLabel)
	}
}

// InsertRowBelow inserts a new empty row directly below `targetRowStr`,
// shifting subsequent rows down by one and translating the filter range.
// Returns whether an insertion occurred and the filter's undo pair.
func (s *Sheet) InsertRowBelow(targetRowStr, user string) (bool, *FilterMutationPair) {
	targetRow, ok := parseRow(targetRowStr)
	if !ok {
		return false, nil
	}
	insertRow := targetRow + 1

	s.mu.Lock()
	for r := s.maxRowLocked(); r >= insertRow; r-- {
		s.shiftRowLocked(r, r+1)
	}
	if s.Data == nil {
		s.Data = make(map[string]map[string]Cell)
	}
	if _, ok := s.Data[itoa(insertRow)]; !ok {
		s.Data[itoa(insertRow)] = make(map[string]Cell)
	}
	// New row height defaults to existing height of target row, if any
	if h, ok := s.RowHeights[targetRowStr]; ok {
		s.RowHeights[itoa(insertRow)] = h
	}

	pair := s.adjustFilterLocked(func(fa *FilterAdapter) (*FilterMutationPair, bool, error) {
		p, err := fa.OnRowsInserted(insertRow, 1)
		return p, false, err
	})

	s.AuditLog = append(s.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "INSERT_ROW",
		Details:   "Inserted row " + itoa(insertRow) + " below row " + targetRowStr,
	})
	s.mu.Unlock()

	globalSheetManager.SaveSheet(s)
	return true, pair
}

// DeleteRow removes the given row, shifting subsequent rows up by one and
// translating the filter range (the filter is dropped if its header row is
// deleted). Returns whether a deletion occurred and the filter's undo pair.
func (s *Sheet) DeleteRow(rowStr, user string) (bool, *FilterMutationPair) {
	row, ok := parseRow(rowStr)
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	// Refuse to delete a row containing locked cells
	if rowMap, ok := s.Data[rowStr]; ok {
		for _, cell := range rowMap {
			if cell.Locked {
				s.AuditLog = append(s.AuditLog, AuditEntry{
					Timestamp: time.Now(),
					User:      user,
					Action:    "DELETE_ROW_DENIED",
					Details:   "Attempted delete of locked row " + rowStr,
				})
				s.mu.Unlock()
				return false, nil
			}
		}
	}
	maxRow := s.maxRowLocked()
	delete(s.Data, rowStr)
	delete(s.RowHeights, rowStr)
	for r := row + 1; r <= maxRow; r++ {
		s.shiftRowLocked(r, r-1)
	}

	pair := s.adjustFilterLocked(func(fa *FilterAdapter) (*FilterMutationPair, bool, error) {
		return fa.OnRowsRemoved(row, 1)
	})

	s.AuditLog = append(s.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "DELETE_ROW",
		Details:   "Deleted row " + rowStr,
	})
	s.mu.Unlock()

	globalSheetManager.SaveSheet(s)
	return true, pair
}

// MoveRowBelow moves the row `fromRowStr` to be directly below
// `targetRowStr`, shifting the intervening rows and translating the filter.
// Returns whether a move occurred and the filter's undo pair.
func (s *Sheet) MoveRowBelow(fromRowStr, targetRowStr, user string) (bool, *FilterMutationPair) {
	fromRow, ok := parseRow(fromRowStr)
	if !ok {
		return false, nil
	}
	targetRow, ok := parseRow(targetRowStr)
	if !ok {
		return false, nil
	}

	destIndex := targetRow + 1
	if destIndex == fromRow { // no-op
		return false, nil
	}
	if fromRow < destIndex {
		destIndex-- // Adjust for removal before insertion
	}

	s.mu.Lock()
	// Prevent cutting a row containing locked cells
	if rowMap, ok := s.Data[fromRowStr]; ok {
		for _, cell := range rowMap {
			if cell.Locked {
				s.AuditLog = append(s.AuditLog, AuditEntry{
					Timestamp: time.Now(),
					User:      user,
					Action:    "MOVE_ROW_DENIED",
					Details:   "Attempted cut/move of locked row " + fromRowStr,
				})
				s.mu.Unlock()
				return false, nil
			}
		}
	}

	savedCells := s.Data[fromRowStr]
	savedHeight, hadHeight := s.RowHeights[fromRowStr]
	delete(s.Data, fromRowStr)
	delete(s.RowHeights, fromRowStr)
	if fromRow < destIndex {
		for r := fromRow + 1; r <= destIndex; r++ {
			s.shiftRowLocked(r, r-1)
		}
	} else {
		for r := fromRow - 1; r >= destIndex; r-- {
			s.shiftRowLocked(r, r+1)
		}
	}
	if len(savedCells) > 0 {
		s.Data[itoa(destIndex)] = savedCells
	} else {
		delete(s.Data, itoa(destIndex))
	}
	if hadHeight {
		s.RowHeights[itoa(destIndex)] = savedHeight
	} else {
		delete(s.RowHeights, itoa(destIndex))
	}

	pair := s.adjustFilterLocked(func(fa *FilterAdapter) (*FilterMutationPair, bool, error) {
		return fa.OnRowMoved(fromRow, destIndex)
	})

	s.AuditLog = append(s.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "MOVE_ROW",
		Details:   fmt.Sprintf("Moved row %d to below row %d", fromRow, targetRow),
	})
	s.mu.Unlock()

	globalSheetManager.SaveSheet(s)
	return true, pair
}

// InsertColumnRight inserts a new empty column directly to the right of
// `targetColStr`, shifting subsequent columns right by one and translating
// the filter's range and column offsets.
func (s *Sheet) InsertColumnRight(targetColStr, user string) (bool, *FilterMutationPair) {
	targetIdx := columnIndex(targetColStr)
	if targetIdx == 0 {
		return false, nil
	}
	insertIdx := targetIdx + 1

	s.mu.Lock()
	for idx := s.maxColLocked(); idx >= insertIdx; idx-- {
		s.shiftColLocked(idx, idx+1)
	}
	// New column width defaults to existing width of target column, if any
	if w, ok := s.ColWidths[targetColStr]; ok {
		s.ColWidths[columnLabel(insertIdx)] = w
	}

	pair := s.adjustFilterLocked(func(fa *FilterAdapter) (*FilterMutationPair, bool, error) {
		p, err := fa.OnColumnsInserted(insertIdx, 1)
		return p, false, err
	})

	s.AuditLog = append(s.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "INSERT_COL",
		Details:   "Inserted column " + columnLabel(insertIdx) + " to the right of column " + targetColStr,
	})
	s.mu.Unlock()

	globalSheetManager.SaveSheet(s)
	return true, pair
}

// DeleteColumn removes the given column, shifting subsequent columns left
// by one and translating the filter (criteria on the deleted column are
// dropped; the filter is removed if its whole span is deleted).
func (s *Sheet) DeleteColumn(colStr, user string) (bool, *FilterMutationPair) {
	colIdx := columnIndex(colStr)
	if colIdx == 0 {
		return false, nil
	}

	s.mu.Lock()
	// Refuse to delete a column containing any locked cell
	for rowKey, rowMap := range s.Data {
		if cell, ok := rowMap[colStr]; ok && cell.Locked {
			s.AuditLog = append(s.AuditLog, AuditEntry{
				Timestamp: time.Now(),
				User:      user,
				Action:    "DELETE_COL_DENIED",
				Details:   "Attempted delete of locked column " + colStr + " (row " + rowKey + ")",
			})
			s.mu.Unlock()
			return false, nil
		}
	}
	maxIdx := s.maxColLocked()
	for _, rowMap := range s.Data {
		delete(rowMap, colStr)
	}
	delete(s.ColWidths, colStr)
	for idx := colIdx + 1; idx <= maxIdx; idx++ {
		s.shiftColLocked(idx, idx-1)
	}

	pair := s.adjustFilterLocked(func(fa *FilterAdapter) (*FilterMutationPair, bool, error) {
		return fa.OnColumnsRemoved(colIdx, 1)
	})

	s.AuditLog = append(s.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "DELETE_COL",
		Details:   "Deleted column " + colStr,
	})
	s.mu.Unlock()

	globalSheetManager.SaveSheet(s)
	return true, pair
}

// MoveColumnRight moves the column `fromColStr` to be directly right of
// `targetColStr`, shifting the intervening columns and translating the
// filter's column offsets.
func (s *Sheet) MoveColumnRight(fromColStr, targetColStr, user string) (bool, *FilterMutationPair) {
	fromIdx := columnIndex(fromColStr)
	targetIdx := columnIndex(targetColStr)
	if fromIdx == 0 || targetIdx == 0 {
		return false, nil
	}
	destIdx := targetIdx + 1
	if destIdx == fromIdx {
		return false, nil
	}
	if fromIdx < destIdx {
		destIdx-- // Adjust for removal before insertion
	}

	s.mu.Lock()
	// Prevent cutting a column containing any locked cell
	for rowKey, rowMap := range s.Data {
		if cell, ok := rowMap[fromColStr]; ok && cell.Locked {
			s.AuditLog = append(s.AuditLog, AuditEntry{
				Timestamp: time.Now(),
				User:      user,
				Action:    "MOVE_COL_DENIED",
				Details:   "Attempted cut/move of locked column " + fromColStr + " (row " + rowKey + ")",
			})
			s.mu.Unlock()
			return false, nil
		}
	}

	savedCol := make(map[string]Cell)
	for rowKey, rowMap := range s.Data {
		if cell, ok := rowMap[fromColStr]; ok {
			savedCol[rowKey] = cell
			delete(rowMap, fromColStr)
		}
	}
	savedWidth, hadWidth := s.ColWidths[fromColStr]
	delete(s.ColWidths, fromColStr)
	if fromIdx < destIdx {
		for idx := fromIdx + 1; idx <= destIdx; idx++ {
			s.shiftColLocked(idx, idx-1)
		}
	} else {
		for idx := fromIdx - 1; idx >= destIdx; idx-- {
			s.shiftColLocked(idx, idx+1)
		}
	}
	destLabel := columnLabel(destIdx)
	for rowKey, cell := range savedCol {
		if s.Data[rowKey] == nil {
			s.Data[rowKey] = make(map[string]Cell)
		}
		s.Data[rowKey][destLabel] = cell
	}
	if hadWidth {
		s.ColWidths[destLabel] = savedWidth
	}

	pair := s.adjustFilterLocked(func(fa *FilterAdapter) (*FilterMutationPair, bool, error) {
		return fa.OnColumnMoved(fromIdx, destIdx)
	})

	s.AuditLog = append(s.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "MOVE_COL",
		Details:   fmt.Sprintf("Moved column %s to right of column %s", fromColStr, targetColStr),
	})
	s.mu.Unlock()

	globalSheetManager.SaveSheet(s)
	return true, pair
}
