package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// Test Plan for tree-sitter script adapters:
// - Python: annotated and documented function is guaranteed; private names skipped;
//   methods drop self; Sphinx and Google docstrings supply types
// - JavaScript: JSDoc types establish params and return; arrow constants included
// - TypeScript: annotations establish params and return; private members skipped
// - Ruby: YARD tags type parameters; methods after `private` skipped; initialize skipped
// - PHP: declared types plus PHPDoc; non-public and magic methods skipped; void has no return
// - Every record invokes the script through its interpreter with the function name

const pythonSource = `"""Inventory helpers."""

def add_item(name: str, count: int = 1) -> bool:
    """Adds an item to the inventory.

    Args:
        name: item name
        count: how many to add
    """
    return True


def total(items):
    """Sums quantities.

    :param items: the items
    :type items: list
    :rtype: int
    """
    return 0


def _internal():
    pass


class Store:
    def restock(self, sku: str) -> None:
        pass

    @staticmethod
    def open(path):
        pass

    def _hidden(self):
        pass
`

func TestPythonAdapter(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "inventory.py", pythonSource)
	invs := extractOne(t, NewPythonAdapter(Deps{}), path)
	assert.Equal(t, []string{"add_item", "total", "Store.restock", "Store.open"}, names(invs))
	got := indexByName(invs)

	add := got["add_item"]
	assert.Equal(t, confidence.Guaranteed, add.Confidence.Tier)
	assert.Equal(t, "Adds an item to the inventory.", add.Documentation)
	require.Len(t, add.Parameters, 2)
	assert.Equal(t, catalog.Parameter{Name: "name", Type: textscan.TypeString, NativeType: "str", Required: true, Description: "item name"}, add.Parameters[0])
	assert.False(t, add.Parameters[1].Required)
	assert.Equal(t, textscan.TypeBoolean, add.Return.Type)
	assert.Equal(t, 3, add.Origin.Line)

	tot := got["total"]
	assert.Equal(t, confidence.Guaranteed, tot.Confidence.Tier)
	require.Len(t, tot.Parameters, 1)
	assert.Equal(t, textscan.TypeArray, tot.Parameters[0].Type)
	assert.Equal(t, textscan.TypeInteger, tot.Return.Type)

	restock := got["Store.restock"]
	assert.Equal(t, []string{"sku"}, paramNames(restock.Parameters))
	assert.Nil(t, restock.Return)
	assert.Equal(t, confidence.High, restock.Confidence.Tier)

	open := got["Store.open"]
	assert.Equal(t, []string{"path"}, paramNames(open.Parameters))
	assert.Equal(t, confidence.Low, open.Confidence.Tier)

	exec, ok := add.Execution.(catalog.ProcessInvoke)
	require.True(t, ok)
	assert.Equal(t, "python", exec.Interpreter)
	assert.Equal(t, "add_item", exec.Function)
	assert.Equal(t, path, exec.ScriptPath)
}

const javaScriptSource = `/**
 * Formats a price.
 * @param {number} amount value in cents
 * @param {string} currency ISO code
 * @returns {string} the formatted price
 */
export function formatPrice(amount, currency) {
  return "";
}

/** Parses a price. */
const parsePrice = (text) => Number(text);

function noDocs(a, b) {}

class Cart {
  constructor() {}
  /** Adds a line. @param {object} line the line */
  add(line) {}
  #secret() {}
}
`

func TestJavaScriptAdapter(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "price.js", javaScriptSource)
	invs := extractOne(t, NewJavaScriptAdapter(Deps{}), path)
	assert.Equal(t, []string{"formatPrice", "parsePrice", "noDocs", "Cart.add"}, names(invs))
	got := indexByName(invs)

	fp := got["formatPrice"]
	assert.Equal(t, confidence.Guaranteed, fp.Confidence.Tier)
	assert.Equal(t, "Formats a price.", fp.Documentation)
	require.Len(t, fp.Parameters, 2)
	assert.Equal(t, textscan.TypeNumber, fp.Parameters[0].Type)
	assert.Equal(t, "value in cents", fp.Parameters[0].Description)
	assert.Equal(t, textscan.TypeString, fp.Return.Type)
	assert.Equal(t, "node", fp.Execution.(catalog.ProcessInvoke).Interpreter)

	pp := got["parsePrice"]
	assert.Equal(t, "Parses a price.", pp.Documentation)
	assert.Equal(t, confidence.Medium, pp.Confidence.Tier)

	assert.Equal(t, confidence.Low, got["noDocs"].Confidence.Tier)
	assert.Equal(t, catalog.KindJavaScript, got["noDocs"].Kind)
}

const typeScriptSource = `export function area(width: number, height: number): number {
  return width * height;
}

export class Shapes {
  public scale(factor: number): void {}
  private reset(): void {}
  protected grow(): void {}
}
`

func TestTypeScriptAdapter(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "shapes.ts", typeScriptSource)
	invs := extractOne(t, NewTypeScriptAdapter(Deps{}), path)
	assert.Equal(t, []string{"area", "Shapes.scale"}, names(invs))

	area := invs[0]
	assert.Equal(t, catalog.KindTypeScript, area.Kind)
	assert.Equal(t, confidence.High, area.Confidence.Tier)
	assert.Equal(t, textscan.TypeNumber, area.Return.Type)
	assert.Equal(t, "tsx", area.Execution.(catalog.ProcessInvoke).Executable)
}

const rubySource = `module Billing
  class Invoice
    # Computes the invoice total.
    # @param tax_rate [Float] rate to apply
    # @return [Float] the total
    def total(tax_rate)
    end

    def initialize(id)
    end

    def self.load(id, *rest, **opts)
    end

    private

    def recalc
    end
  end
end
`

func TestRubyAdapter(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "invoice.rb", rubySource)
	invs := extractOne(t, NewRubyAdapter(Deps{}), path)
	assert.Equal(t, []string{"Billing::Invoice.total", "Billing::Invoice.load"}, names(invs))

	total := invs[0]
	assert.Equal(t, confidence.Guaranteed, total.Confidence.Tier)
	assert.Equal(t, "Computes the invoice total.", total.Documentation)
	require.Len(t, total.Parameters, 1)
	assert.Equal(t, textscan.TypeNumber, total.Parameters[0].Type)
	assert.Equal(t, "rate to apply", total.Parameters[0].Description)
	assert.Equal(t, textscan.TypeNumber, total.Return.Type)
	assert.Equal(t, "ruby", total.Execution.(catalog.ProcessInvoke).Interpreter)

	load := invs[1]
	require.Len(t, load.Parameters, 3)
	assert.Equal(t, textscan.TypeArray, load.Parameters[1].Type)
	assert.Equal(t, textscan.TypeObject, load.Parameters[2].Type)
	assert.Equal(t, confidence.Low, load.Confidence.Tier)
}

const phpSource = `<?php
/**
 * Sends a message.
 * @param string $to recipient
 * @param string $body message text
 * @return bool whether it was queued
 */
function send_message(string $to, string $body = ""): bool {
    return true;
}

class Mailer {
    public function __construct() {}

    /** Flushes the queue. */
    public function flush(int $limit): void {}

    private function connect() {}

    function legacy($x, ...$rest) {}
}
`

func TestPHPAdapter(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "mail.php", phpSource)
	invs := extractOne(t, NewPHPAdapter(Deps{}), path)
	assert.Equal(t, []string{"send_message", "Mailer.flush", "Mailer.legacy"}, names(invs))
	got := indexByName(invs)

	send := got["send_message"]
	assert.Equal(t, confidence.Guaranteed, send.Confidence.Tier)
	assert.Equal(t, []string{"to", "body"}, paramNames(send.Parameters))
	assert.True(t, send.Parameters[0].Required)
	assert.False(t, send.Parameters[1].Required)
	assert.Equal(t, "recipient", send.Parameters[0].Description)
	assert.Equal(t, textscan.TypeBoolean, send.Return.Type)

	flush := got["Mailer.flush"]
	assert.Nil(t, flush.Return)
	assert.Equal(t, confidence.Guaranteed, flush.Confidence.Tier)

	legacy := got["Mailer.legacy"]
	require.Len(t, legacy.Parameters, 2)
	assert.Equal(t, textscan.TypeAny, legacy.Parameters[0].Type)
	assert.Equal(t, textscan.TypeArray, legacy.Parameters[1].Type)
	assert.Equal(t, confidence.Low, legacy.Confidence.Tier)
}
