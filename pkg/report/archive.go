package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"github.com/ruslano69/tpcc-workbench/pkg/acid"
)

// DefaultCompressionLevel - уровень zstd по умолчанию, баланс
// скорости и степени сжатия
const DefaultCompressionLevel = 3

// DefaultArchivePrefix используется при пустом префиксе имени архива
const DefaultArchivePrefix = "acid"

// Archive описывает записанный архивный артефакт
type Archive struct {
	// ArchivePath - путь к сжатому JSON результата
	ArchivePath string `json:"archive_path"`

	// ChecksumPath - путь к файлу контрольной суммы
	ChecksumPath string `json:"checksum_path"`

	// Checksum - xxh3-хеш сжатых байтов (hex)
	Checksum string `json:"checksum"`

	// OriginalSize и CompressedSize - размеры до и после сжатия
	OriginalSize   int `json:"original_size"`
	CompressedSize int `json:"compressed_size"`
}

// WriteArchive записывает результат сьюта как сжатый JSON-архив
// <prefix>-<session>.json.zst с соседним файлом контрольной суммы
// <prefix>-<session>.json.zst.xxh3. Хеш считается по сжатым байтам,
// так что проверка целостности не требует распаковки.
func WriteArchive(result *acid.SuiteResult, dir, prefix string) (*Archive, error) {
	if result == nil {
		return nil, fmt.Errorf("suite result is nil")
	}
	if prefix == "" {
		prefix = DefaultArchivePrefix
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal suite result: %w", err)
	}

	compressed, err := compress(data, DefaultCompressionLevel)
	if err != nil {
		return nil, err
	}
	checksum := fmt.Sprintf("%016x", xxh3.Hash(compressed))

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}
	base := fmt.Sprintf("%s-%d.json.zst", prefix, result.SessionID)
	archivePath := filepath.Join(dir, base)
	checksumPath := archivePath + ".xxh3"

	if err := os.WriteFile(archivePath, compressed, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write archive: %w", err)
	}
	// Формат строки совместим с sha256sum: хеш, два пробела, имя файла
	line := fmt.Sprintf("%s  %s\n", checksum, base)
	if err := os.WriteFile(checksumPath, []byte(line), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write checksum file: %w", err)
	}

	return &Archive{
		ArchivePath:    archivePath,
		ChecksumPath:   checksumPath,
		Checksum:       checksum,
		OriginalSize:   len(data),
		CompressedSize: len(compressed),
	}, nil
}

// LoadArchive читает архивный артефакт обратно в результат сьюта.
// Если рядом лежит файл контрольной суммы, целостность проверяется
// до распаковки; расхождение - ошибка.
func LoadArchive(archivePath string) (*acid.SuiteResult, error) {
	compressed, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	if expected, ok := readChecksumLine(archivePath + ".xxh3"); ok {
		actual := fmt.Sprintf("%016x", xxh3.Hash(compressed))
		if actual != expected {
			return nil, fmt.Errorf(
				"checksum mismatch: expected %s, got %s (archive corrupted)",
				expected, actual,
			)
		}
	}

	data, err := decompress(compressed)
	if err != nil {
		return nil, err
	}

	var result acid.SuiteResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal suite result: %w", err)
	}
	return &result, nil
}

// readChecksumLine читает хеш из файла контрольной суммы.
// Отсутствующий файл - не ошибка: архив могли перенести без него.
func readChecksumLine(path string) (string, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// compress сжимает блок данных zstd-кодеком
func compress(input []byte, level int) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(4),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(input, nil), nil
}

// decompress распаковывает блок данных zstd-кодеком
func decompress(input []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(4))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	data, err := decoder.DecodeAll(input, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress archive: %w", err)
	}
	return data, nil
}
