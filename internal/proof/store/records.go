package store

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	e "github.com/gartstein/proofly/internal/proof/errors"
	"github.com/gartstein/proofly/internal/proof/models"
)

var (
	jsonMarshal   = json.Marshal
	jsonUnmarshal = json.Unmarshal
)

// IDKey renders an identifier as a fixed-width key so lexical key order
// matches numeric order.
func IDKey(id uint64) string {
	return fmt.Sprintf("%020d", id)
}

// GetJSON decodes the value at key into v. It reports false when the key is
// absent.
func GetJSON(tx Tx, p Partition, key string, v any) (bool, error) {
	raw, found, err := tx.Get(p, key)
	if err != nil || !found {
		return false, err
	}
	if err := jsonUnmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s/%s: %v: %w", p, key, err, e.ErrStoreUnavailable)
	}
	return true, nil
}

// PutJSON encodes v and stores it at key.
func PutJSON(tx Tx, p Partition, key string, v any) error {
	raw, err := jsonMarshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", p, key, err)
	}
	return tx.Put(p, key, raw)
}

// Increment atomically bumps the counter at key and returns the new value.
// Counters start at zero, so the first call returns 1.
func Increment(tx Tx, key string) (uint64, error) {
	raw, found, err := tx.Get(Counters, key)
	if err != nil {
		return 0, err
	}
	var current uint64
	if found {
		current, err = strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("decode counter %s: %v: %w", key, err, e.ErrStoreUnavailable)
		}
	}
	next := current + 1
	if err := tx.Put(Counters, key, []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, err
	}
	return next, nil
}

// GetIDList returns the ordered identifier list stored at key, or nil.
func GetIDList(tx Tx, p Partition, key string) ([]uint64, error) {
	var ids []uint64
	if _, err := GetJSON(tx, p, key, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// AppendID adds id to the list at key unless already present. It reports
// whether the list changed.
func AppendID(tx Tx, p Partition, key string, id uint64) (bool, error) {
	ids, err := GetIDList(tx, p, key)
	if err != nil {
		return false, err
	}
	if slices.Contains(ids, id) {
		return false, nil
	}
	return true, PutJSON(tx, p, key, append(ids, id))
}

// RemoveID drops id from the list at key. It reports whether the list changed.
func RemoveID(tx Tx, p Partition, key string, id uint64) (bool, error) {
	ids, err := GetIDList(tx, p, key)
	if err != nil {
		return false, err
	}
	i := slices.Index(ids, id)
	if i < 0 {
		return false, nil
	}
	ids = slices.Delete(ids, i, i+1)
	if len(ids) == 0 {
		return true, tx.Delete(p, key)
	}
	return true, PutJSON(tx, p, key, ids)
}

// GetCompany loads a company record or returns ErrNotFound.
func GetCompany(tx Tx, id uint64) (*models.Company, error) {
	var c models.Company
	found, err := GetJSON(tx, Companies, IDKey(id), &c)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("company %d: %w", id, e.ErrNotFound)
	}
	return &c, nil
}

// PutCompany stores a company record.
func PutCompany(tx Tx, c *models.Company) error {
	return PutJSON(tx, Companies, IDKey(c.ID), c)
}

// GetEmployee loads an employee record or returns ErrNotFound.
func GetEmployee(tx Tx, id uint64) (*models.Employee, error) {
	var emp models.Employee
	found, err := GetJSON(tx, Employees, IDKey(id), &emp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("employee %d: %w", id, e.ErrNotFound)
	}
	return &emp, nil
}

// PutEmployee stores an employee record.
func PutEmployee(tx Tx, emp *models.Employee) error {
	return PutJSON(tx, Employees, IDKey(emp.ID), emp)
}

// GetProof loads a proof by code or returns ErrNotFound.
func GetProof(tx Tx, code string) (*models.Proof, error) {
	var p models.Proof
	found, err := GetJSON(tx, Proofs, code, &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("proof: %w", e.ErrNotFound)
	}
	return &p, nil
}

// PutProof stores a proof record keyed by its code.
func PutProof(tx Tx, p *models.Proof) error {
	return PutJSON(tx, Proofs, p.Code, p)
}
