package parser

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"nbcollab/internal/core/errors"
)

const sampleNotebook = `{
  "nbformat": 4,
  "nbformat_minor": 5,
  "metadata": {"unianalytics_notebook_id": "nb-42"},
  "cells": [
    {"cell_type": "markdown", "id": "m0", "metadata": {}, "source": ["# Intro\n", "Some text"]},
    {"cell_type": "code", "id": "c1", "metadata": {}, "outputs": [], "source": ["import pandas as pd\n", "df = pd.read_csv('x.csv')"]},
    {"cell_type": "raw", "id": "r2", "metadata": {}, "source": "raw"},
    {"cell_type": "code", "id": "c3", "metadata": {}, "outputs": [], "source": "df.head()"}
  ]
}`

func TestDecodeNotebook(t *testing.T) {
	nb, err := DecodeNotebook("sample.ipynb", []byte(sampleNotebook))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if nb.ID != "nb-42" {
		t.Errorf("expected notebook id nb-42, got %q", nb.ID)
	}
	if len(nb.Cells) != 4 {
		t.Fatalf("expected 4 cells, got %d", len(nb.Cells))
	}

	md := nb.Cells[0]
	if md.Kind != CellMarkdown || md.Source != "# Intro\nSome text" || md.ID != "" {
		t.Errorf("unexpected markdown cell: %+v", md)
	}
	code := nb.Cells[1]
	if code.Kind != CellCode || code.ID != "c1" || code.Index != 1 {
		t.Errorf("unexpected code cell: %+v", code)
	}
	if nb.Cells[2].Kind != CellRaw {
		t.Errorf("expected raw cell, got %v", nb.Cells[2].Kind)
	}
	if got := len(nb.CodeCells()); got != 2 {
		t.Errorf("expected 2 code cells, got %d", got)
	}
}

func TestDecodeNotebook_Invalid(t *testing.T) {
	_, err := DecodeNotebook("bad.ipynb", []byte("{not json"))
	if !errors.IsCode(err, errors.CodeValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = DecodeNotebook("old.ipynb", []byte(`{"nbformat": 3, "cells": []}`))
	if !errors.IsCode(err, errors.CodeNotSupported) {
		t.Fatalf("expected not-supported error, got %v", err)
	}
}

func TestLoadNotebook_Zip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lab_nb-42.zip")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("lab.ipynb")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(sampleNotebook)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	nb, err := LoadNotebook(path)
	if err != nil {
		t.Fatalf("load zip: %v", err)
	}
	if nb.Name != "lab.ipynb" || len(nb.Cells) != 4 {
		t.Errorf("unexpected notebook: name=%q cells=%d", nb.Name, len(nb.Cells))
	}

	_, err = LoadNotebook(filepath.Join(dir, "missing.ipynb"))
	if !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
