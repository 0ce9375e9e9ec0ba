package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// CommandConverter — конвертер поверх внешнего GIS-инструмента.
//
// Аргументы команды — шаблоны с плейсхолдерами:
//
//	{west} {south} {east} {north} — bounding box экстента
//	{polyfile}                    — путь к записанному polyfile
//	{src}                         — путь к исходному срезу данных
//	{out}                         — путь к выходному файлу/каталогу
type CommandConverter struct {
	format  string
	command string
	args    []string
}

// NewCommandConverter создаёт CommandConverter.
func NewCommandConverter(format, command string, args ...string) *CommandConverter {
	return &CommandConverter{format: format, command: command, args: args}
}

// Convert запускает внешнюю команду и возвращает путь и размер результата.
func (c *CommandConverter) Convert(ctx context.Context, req *Request) (*Result, error) {
	outPath := filepath.Join(req.WorkDir, req.JobID+"_"+c.format)
	srcPath := filepath.Join(req.WorkDir, req.JobID+".pbf")

	polyPath := ""
	if req.Polyfile != "" {
		polyPath = filepath.Join(req.WorkDir, req.JobID+".poly")
		if err := os.WriteFile(polyPath, []byte(req.Polyfile), 0640); err != nil {
			return nil, fmt.Errorf("write polyfile: %w", err)
		}
	}

	replacer := strings.NewReplacer(
		"{west}", strconv.FormatFloat(req.West, 'f', -1, 64),
		"{south}", strconv.FormatFloat(req.South, 'f', -1, 64),
		"{east}", strconv.FormatFloat(req.East, 'f', -1, 64),
		"{north}", strconv.FormatFloat(req.North, 'f', -1, 64),
		"{polyfile}", polyPath,
		"{src}", srcPath,
		"{out}", outPath,
	)

	args := make([]string, len(c.args))
	for i, a := range c.args {
		args[i] = replacer.Replace(a)
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	cmd.Dir = req.WorkDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v: %s",
			ErrConversionFailed, c.command, c.format, err, tail(output))
	}

	size, err := pathSize(outPath)
	if err != nil {
		return nil, fmt.Errorf("measure %s output: %w", c.format, err)
	}

	return &Result{Path: outPath, SizeBytes: size}, nil
}

// tail возвращает последние строки вывода команды для сообщения об ошибке.
func tail(output []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(output))
	if len(s) > maxLen {
		s = "..." + s[len(s)-maxLen:]
	}
	return s
}

// pathSize возвращает суммарный размер файла или каталога.
func pathSize(path string) (int64, error) {
	var total int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
