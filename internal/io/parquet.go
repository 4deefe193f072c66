package io

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/paveg/finwrangle/internal/dataframe"
	"github.com/paveg/finwrangle/internal/errors"
	"github.com/paveg/finwrangle/internal/series"
)

// Read reads Parquet data and returns a DataFrame. Only string, int64,
// float64 and bool columns are accepted; nulls are preserved.
func (r *ParquetReader) Read() (*dataframe.DataFrame, error) {
	data, err := io.ReadAll(r.reader)
	if err != nil {
		return nil, errors.NewParseError("ReadParquet", "reading data", err)
	}

	pqReader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewParseError("ReadParquet", "opening parquet file", err)
	}
	defer pqReader.Close()

	mem := r.mem
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	props := pqarrow.ArrowReadProperties{BatchSize: int64(r.options.BatchSize)}
	arrowReader, err := pqarrow.NewFileReader(pqReader, props, mem)
	if err != nil {
		return nil, errors.NewParseError("ReadParquet", "creating arrow reader", err)
	}

	tbl, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, errors.NewParseError("ReadParquet", "reading table", err)
	}
	defer tbl.Release()

	return tableToDataFrame(tbl, mem)
}

func tableToDataFrame(tbl arrow.Table, mem memory.Allocator) (*dataframe.DataFrame, error) {
	cols := make([]dataframe.ISeries, 0, tbl.NumCols())
	release := func() {
		for _, c := range cols {
			c.Release()
		}
	}

	for i := 0; i < int(tbl.NumCols()); i++ {
		column := tbl.Column(i)
		arr, err := concatChunks(column.Data(), mem)
		if err != nil {
			release()
			return nil, errors.NewParseError("ReadParquet", fmt.Sprintf("column %s", column.Name()), err)
		}
		s, err := series.FromArray(column.Name(), arr)
		arr.Release()
		if err != nil {
			release()
			return nil, errors.NewUnsupportedTypeError("ReadParquet", column.Name(), column.DataType().String())
		}
		cols = append(cols, s)
	}
	return dataframe.NewChecked(cols...)
}

// concatChunks flattens a chunked column into one array the caller releases.
func concatChunks(chunked *arrow.Chunked, mem memory.Allocator) (arrow.Array, error) {
	chunks := chunked.Chunks()
	switch len(chunks) {
	case 0:
		return array.MakeArrayOfNull(mem, chunked.DataType(), 0), nil
	case 1:
		chunks[0].Retain()
		return chunks[0], nil
	default:
		return array.Concatenate(chunks, mem)
	}
}

// Write writes the DataFrame to Parquet format.
func (w *ParquetWriter) Write(df *dataframe.DataFrame) error {
	tbl, err := dataFrameToArrowTable(df)
	if err != nil {
		return err
	}
	defer tbl.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compressionCodec(w.options.Compression)),
		parquet.WithBatchSize(int64(max(w.options.BatchSize, 1))),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(memory.NewGoAllocator()))

	writer, err := pqarrow.NewFileWriter(tbl.Schema(), w.writer, props, arrowProps)
	if err != nil {
		return fmt.Errorf("creating file writer: %w", err)
	}
	if err := writer.WriteTable(tbl, max(int64(df.Len()), 1)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing table: %w", err)
	}
	return writer.Close()
}

func compressionCodec(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Codecs.Gzip
	case "zstd":
		return compress.Codecs.Zstd
	case "uncompressed", "none":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}

// dataFrameToArrowTable shares the DataFrame's arrays with a new Arrow table.
func dataFrameToArrowTable(df *dataframe.DataFrame) (tbl arrow.Table, err error) {
	names := df.Columns()
	fields := make([]arrow.Field, 0, len(names))
	columns := make([]arrow.Column, 0, len(names))

	for _, name := range names {
		col, _ := df.Column(name)
		arr := col.Array()
		field := arrow.Field{Name: name, Type: arr.DataType(), Nullable: true}
		chunked := arrow.NewChunked(arr.DataType(), []arrow.Array{arr})
		arr.Release()
		column := arrow.NewColumn(field, chunked)
		chunked.Release()
		fields = append(fields, field)
		columns = append(columns, *column)
	}
	defer func() {
		for i := range columns {
			columns[i].Release()
		}
	}()

	// array.NewTable panics on a schema or length mismatch.
	defer func() {
		if r := recover(); r != nil {
			tbl, err = nil, errors.NewInternalError("WriteParquet", fmt.Errorf("building table: %v", r))
		}
	}()
	return array.NewTable(arrow.NewSchema(fields, nil), columns, int64(df.Len())), nil
}
