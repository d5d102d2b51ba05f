package repository

import (
	"github.com/HKCalvinYau/wati-automation/internal/model"
	"gorm.io/gorm"
)

// TemplateRepository 模板仓储接口
type TemplateRepository interface {
	FindAll() ([]*model.TemplateRecord, error)
	ReplaceAll(records []*model.TemplateRecord) error
	GetMeta() (map[string]string, error)
	SaveMeta(meta map[string]string) error
}

// templateRepository 模板仓储实现
type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository 创建模板仓储
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

// FindAll 按集合顺序返回全部模板行
func (r *templateRepository) FindAll() ([]*model.TemplateRecord, error) {
	var records []*model.TemplateRecord
	err := r.db.Order("position ASC").Find(&records).Error
	return records, err
}

// ReplaceAll 用给定的行整体替换表内容,调用方负责事务
func (r *templateRepository) ReplaceAll(records []*model.TemplateRecord) error {
	if err := r.db.Where("1 = 1").Delete(&model.TemplateRecord{}).Error; err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	return r.db.CreateInBatches(records, 100).Error
}

// GetMeta 读取元数据键值
func (r *templateRepository) GetMeta() (map[string]string, error) {
	var rows []model.StoreMetaRecord
	if err := r.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	meta := make(map[string]string, len(rows))
	for _, row := range rows {
		meta[row.Key] = row.Value
	}
	return meta, nil
}

// SaveMeta 写入元数据键值
func (r *templateRepository) SaveMeta(meta map[string]string) error {
	for k, v := range meta {
		if err := r.db.Save(&model.StoreMetaRecord{Key: k, Value: v}).Error; err != nil {
			return err
		}
	}
	return nil
}
