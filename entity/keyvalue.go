package entity

// KeyValue backs the generic key-value table used for small config records
// and whitelisted secrets.
type KeyValue struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (KeyValue) TableName() string {
	return "key_value_store"
}
