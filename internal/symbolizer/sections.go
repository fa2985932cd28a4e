package symbolizer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/macprof-analysis/pkg/errors"
	"github.com/macprof-analysis/pkg/model"
	"github.com/macprof-analysis/pkg/utils"
)

// DefaultCodeSectionPrefix names per-segment code sections: segment 3 lives
// in section ".code00003".
const DefaultCodeSectionPrefix = ".code"

// Section is one row of "objdump -h -w".
type Section struct {
	Name string
	Size uint32
	VMA  uint32
}

// sectionLine matches "  0 .text  00000134  00000000  00000000  00000034  2**2 ...".
var sectionLine = regexp.MustCompile(`^\s*\d+\s+(\S+)\s+([0-9a-fA-F]+)\s+([0-9a-fA-F]+)\s+[0-9a-fA-F]+\s+[0-9a-fA-F]+`)

// ParseSections parses "objdump -h -w" output.
func ParseSections(out []byte) ([]Section, error) {
	var sections []Section
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		m := sectionLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		size, err := strconv.ParseUint(m[2], 16, 32)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeParseError, "bad section size "+m[2], err)
		}
		vma, err := strconv.ParseUint(m[3], 16, 32)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeParseError, "bad section address "+m[3], err)
		}
		sections = append(sections, Section{Name: m[1], Size: uint32(size), VMA: uint32(vma)})
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeParseError, "read section headers", err)
	}
	return sections, nil
}

// SectionLayout fills in the on-disk section range of every capture segment.
type SectionLayout struct {
	runner  CommandRunner
	objdump string
	prefix  string
	logger  utils.Logger
}

// NewSectionLayout creates a layout reader that runs objdump through runner.
func NewSectionLayout(runner CommandRunner, objdump, prefix string, logger utils.Logger) *SectionLayout {
	if runner == nil {
		runner = ExecRunner{}
	}
	if objdump == "" {
		objdump = DefaultObjdump
	}
	if prefix == "" {
		prefix = DefaultCodeSectionPrefix
	}
	return &SectionLayout{runner: runner, objdump: objdump, prefix: prefix, logger: utils.OrNull(logger)}
}

// Apply reads the section headers of binary and maps every segment onto its
// section.
func (s *SectionLayout) Apply(ctx context.Context, binary string, capture *model.Capture) error {
	out, err := s.runner.Run(ctx, s.objdump, "-h", "-w", binary)
	if err != nil {
		return err
	}
	sections, err := ParseSections(out)
	if err != nil {
		return err
	}
	return ApplySections(capture, sections, s.prefix, s.logger)
}

// ApplySections maps segment N onto section <prefix>%05d. A binary without
// such sections may still serve a single-segment capture through .text.
// The number of code sections must equal the number of segments.
func ApplySections(capture *model.Capture, sections []Section, prefix string, logger utils.Logger) error {
	logger = utils.OrNull(logger)

	code := make(map[string]Section)
	var text *Section
	for i := range sections {
		sec := sections[i]
		if strings.HasPrefix(sec.Name, prefix) && isDigits(strings.TrimPrefix(sec.Name, prefix)) {
			code[sec.Name] = sec
		}
		if sec.Name == ".text" {
			text = &sections[i]
		}
	}

	if len(code) == 0 && len(capture.Segments) == 1 && text != nil {
		setSection(&capture.Segments[0], *text, logger)
		return nil
	}

	if len(code) != len(capture.Segments) {
		return apperrors.Newf(apperrors.CodeSegmentCountMismatch,
			"capture has %d code segments, binary has %d %s sections", len(capture.Segments), len(code), prefix)
	}

	for i := range capture.Segments {
		seg := &capture.Segments[i]
		name := fmt.Sprintf("%s%05d", prefix, seg.ID)
		sec, ok := code[name]
		if !ok {
			return apperrors.Newf(apperrors.CodeSegmentCountMismatch, "binary has no section %s for segment %d", name, seg.ID)
		}
		setSection(seg, sec, logger)
	}
	return nil
}

// ApplyNoLayout is used when no section headers are read: offsets equal
// segment-relative addresses, which is only meaningful for one segment.
func ApplyNoLayout(capture *model.Capture) error {
	if len(capture.Segments) > 1 {
		return apperrors.Newf(apperrors.CodeSegmentCountMismatch,
			"capture has %d code segments; multi-segment captures need a section layout", len(capture.Segments))
	}
	for i := range capture.Segments {
		capture.Segments[i].SectionStart = 0
		capture.Segments[i].SectionEnd = capture.Segments[i].Size()
	}
	return nil
}

func setSection(seg *model.CodeSegment, sec Section, logger utils.Logger) {
	seg.SectionStart = sec.VMA
	seg.SectionEnd = sec.VMA + sec.Size
	if sec.Size < seg.Size() {
		logger.Warn("Section %s (0x%x bytes) is smaller than %s", sec.Name, sec.Size, seg)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
