package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONBMap реализует интерфейсы sql.Scanner и driver.Valuer
// для сериализации map[string]string в JSON-колонку.
type JSONBMap map[string]string

// Value преобразует карту в JSON для сохранения в БД.
func (m JSONBMap) Value() (driver.Value, error) {
	if m == nil {
		m = make(map[string]string)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan преобразует JSON из БД обратно в карту.
func (m *JSONBMap) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*m = JSONBMap{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	out := JSONBMap{}
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

func (JSONBMap) GormDataType() string { return "text" }

func (Attributes) GormDataType() string { return "text" }

func (ScopeResult) GormDataType() string { return "text" }
