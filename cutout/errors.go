package cutout

import (
	"errors"
	"fmt"

	"github.com/chaos-io/bgremove/util"
)

var (
	ErrEmptyModelList = errors.New("empty model list")
	ErrEmptySource    = errors.New("source image has zero size")
	ErrMaskSize       = errors.New("mask size does not match source")
	ErrEmptyMaskSet   = errors.New("empty mask set")
	ErrImageTooLarge  = util.ErrImageTooLarge
	ErrInvalidSize    = errors.New("output size must be positive")
	ErrInvalidOption  = errors.New("invalid option")
)

// 处理阶段名称，用于 StageError 定位
const (
	StageValidate  = "validate"
	StageSegment   = "segment"
	StageMerge     = "merge"
	StageApplyMask = "apply-mask"
	StageCompose   = "compose"
	StageExport    = "export"
)

// StageError 记录失败的图片以及失败的处理阶段
type StageError struct {
	Image string
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("image %q: stage %s: %v", e.Image, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(image, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Image: image, Stage: stage, Err: err}
}
