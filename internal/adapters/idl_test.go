package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// Test Plan for IDLAdapter:
// - CORBA: modules qualify names; attributes expand to _get_/_set_ accessors;
//   oneway and raises clauses parse; out parameters are excluded; forward declarations ignored
// - MIDL [object] interface dispatches through COM; retval becomes the return; HRESULT is no return;
//   id() sets the dispatch id; helpstring documents when no comment does
// - Other [uuid] interfaces are MS-RPC with opnums in declaration order
// - dispinterface properties become accessors; readonly properties have no setter
// - Parameter declarations drop qualifiers, fold array declarators into the type and
//   synthesize names for unnamed multi-word types

const bankIDL = `#include <orb.idl>
// Bank services.
module Bank {
  exception Rejected { string reason; };
  /* Account operations. */
  interface Account {
    // Current balance.
    readonly attribute double balance;
    attribute string owner;
    /** Deposits money. */
    void deposit(in double amount) raises (Rejected);
    oneway void audit(in string note);
    long transfer(in Account target, inout double amount, out string receipt);
  };
  interface Forward;
};
`

func TestScanIDL_CORBA(t *testing.T) {
	t.Parallel()

	ifaces := ScanIDL(bankIDL)
	require.Len(t, ifaces, 1)
	acct := ifaces[0]
	assert.Equal(t, []string{"Bank"}, acct.Module)
	assert.Equal(t, "Account", acct.Name)
	assert.Equal(t, FlavorCORBA, acct.Flavor)
	assert.Equal(t, "Account operations.", acct.Doc)
	assert.Len(t, acct.Operations, 6)
}

func TestIDLAdapter_CORBA(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "bank.idl", bankIDL)
	invs := extractOne(t, NewIDLAdapter(Deps{}), path)
	assert.Equal(t, []string{
		"Bank::Account._get_balance",
		"Bank::Account._get_owner",
		"Bank::Account._set_owner",
		"Bank::Account.deposit",
		"Bank::Account.audit",
		"Bank::Account.transfer",
	}, names(invs))
	got := indexByName(invs)

	balance := got["Bank::Account._get_balance"]
	assert.Equal(t, "Current balance.", balance.Documentation)
	assert.Equal(t, confidence.Guaranteed, balance.Confidence.Tier)
	assert.Equal(t, textscan.TypeNumber, balance.Return.Type)

	setOwner := got["Bank::Account._set_owner"]
	assert.Equal(t, []string{"value"}, paramNames(setOwner.Parameters))
	assert.Nil(t, setOwner.Return)

	deposit := got["Bank::Account.deposit"]
	assert.Equal(t, "Deposits money.", deposit.Documentation)
	assert.Equal(t, 11, deposit.Origin.Line)
	assert.Nil(t, deposit.Return)
	assert.Equal(t, confidence.Guaranteed, deposit.Confidence.Tier)
	assert.Equal(t, catalog.CORBACall{
		IDLPath:      path,
		Module:       "Bank",
		Interface:    "Account",
		Operation:    "deposit",
		RepositoryID: "IDL:Bank/Account:1.0",
	}, deposit.Execution)

	audit := got["Bank::Account.audit"]
	assert.True(t, audit.Execution.(catalog.CORBACall).Oneway)
	assert.Equal(t, confidence.High, audit.Confidence.Tier)

	transfer := got["Bank::Account.transfer"]
	assert.Equal(t, []string{"target", "amount"}, paramNames(transfer.Parameters))
	assert.Equal(t, textscan.TypeInteger, transfer.Return.Type)
}

const calcIDL = `import "oaidl.idl";

[
  object,
  uuid(6B29FC40-CA47-1067-B31D-00DD010662DA),
  dual,
  helpstring("Calculator interface")
]
interface ICalc : IDispatch {
  [id(1), helpstring("Adds two numbers")]
  HRESULT Add([in] long a, [in] long b, [out, retval] long* result);
  [propget, id(2)]
  HRESULT Precision([out, retval] short* value);
  [propput, id(2)]
  HRESULT Precision([in] short value);
};
`

func TestIDLAdapter_COMInterface(t *testing.T) {
	t.Parallel()

	ifaces := ScanIDL(calcIDL)
	require.Len(t, ifaces, 1)
	assert.Equal(t, FlavorCOM, ifaces[0].Flavor)
	assert.Equal(t, "Calculator interface", ifaces[0].Doc)
	assert.Equal(t, "6B29FC40-CA47-1067-B31D-00DD010662DA", ifaces[0].UUID)

	path := writeArtifact(t, t.TempDir(), "calc.idl", calcIDL)
	invs := extractOne(t, NewIDLAdapter(Deps{}), path)
	assert.Equal(t, []string{"ICalc.Add", "ICalc.get_Precision", "ICalc.put_Precision"}, names(invs))

	add := invs[0]
	assert.Equal(t, "Adds two numbers", add.Documentation)
	assert.Equal(t, confidence.Guaranteed, add.Confidence.Tier)
	assert.Equal(t, []string{"a", "b"}, paramNames(add.Parameters))
	assert.Equal(t, &catalog.ReturnType{Type: textscan.TypeInteger, Native: "long"}, add.Return)
	exec := add.Execution.(catalog.COMDispatch)
	assert.Equal(t, "ICalc", exec.Interface)
	assert.Equal(t, "6B29FC40-CA47-1067-B31D-00DD010662DA", exec.InterfaceID)
	assert.Equal(t, "method", exec.InvokeKind)
	assert.Equal(t, "Add", exec.Member)
	require.NotNil(t, exec.DispID)
	assert.Equal(t, int32(1), *exec.DispID)

	get := invs[1]
	assert.Empty(t, get.Parameters)
	assert.Equal(t, textscan.TypeInteger, get.Return.Type)
	assert.Equal(t, "propget", get.Execution.(catalog.COMDispatch).InvokeKind)
	assert.Equal(t, confidence.High, get.Confidence.Tier)

	put := invs[2]
	assert.Equal(t, []string{"value"}, paramNames(put.Parameters))
	assert.Nil(t, put.Return)
	assert.Equal(t, "Precision", put.Execution.(catalog.COMDispatch).Member)
}

const spoolerIDL = `[
  uuid(12345678-1234-ABCD-EF00-0123456789AB),
  version(1.0),
  pointer_default(unique)
]
interface Spooler
{
  // Opens a printer.
  long OpenPrinter([in, string, unique] wchar_t* name, [out] long* handle);
  void ClosePrinter([in] long handle);
}
`

func TestIDLAdapter_RPCInterface(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "spooler.idl", spoolerIDL)
	invs := extractOne(t, NewIDLAdapter(Deps{}), path)
	assert.Equal(t, []string{"Spooler.OpenPrinter", "Spooler.ClosePrinter"}, names(invs))

	open := invs[0]
	assert.Equal(t, "Opens a printer.", open.Documentation)
	assert.Equal(t, []string{"name"}, paramNames(open.Parameters))
	assert.Equal(t, textscan.TypeInteger, open.Return.Type)
	assert.Equal(t, catalog.RPCCall{
		IDLPath:       path,
		Interface:     "Spooler",
		InterfaceUUID: "12345678-1234-ABCD-EF00-0123456789AB",
		Version:       "1.0",
		Operation:     "OpenPrinter",
		Opnum:         0,
	}, open.Execution)

	closeOp := invs[1]
	assert.Equal(t, 1, closeOp.Execution.(catalog.RPCCall).Opnum)
	assert.Nil(t, closeOp.Return)
	assert.Equal(t, confidence.High, closeOp.Confidence.Tier)
}

func TestIDLAdapter_Dispinterface(t *testing.T) {
	t.Parallel()

	src := `[uuid(00000000-0000-0000-0000-000000000001)]
dispinterface DEvents {
properties:
  [id(1)] long Count;
  [id(2), readonly] BSTR Label;
methods:
  [id(3)] void Fire(VARIANT arg);
};
`
	path := writeArtifact(t, t.TempDir(), "events.idl", src)
	invs := extractOne(t, NewIDLAdapter(Deps{}), path)
	assert.Equal(t, []string{"DEvents.get_Count", "DEvents.put_Count", "DEvents.get_Label", "DEvents.Fire"}, names(invs))

	for _, inv := range invs {
		_, ok := inv.Execution.(catalog.COMDispatch)
		assert.True(t, ok, inv.Name)
	}
	assert.Equal(t, int32(1), *invs[1].Execution.(catalog.COMDispatch).DispID)
	assert.Equal(t, "propput", invs[1].Execution.(catalog.COMDispatch).InvokeKind)
	assert.Equal(t, int32(3), *invs[3].Execution.(catalog.COMDispatch).DispID)
	assert.Equal(t, []string{"arg"}, paramNames(invs[3].Parameters))
	assert.Nil(t, invs[3].Return)
}

func TestScanIDL_ParameterDeclarations(t *testing.T) {
	t.Parallel()

	src := `[
  uuid(0F0E0D0C-0B0A-0908-0706-050403020100),
  version(2.0)
]
interface Meter
{
  void Record([in] const wchar_t* label, [in] long samples[4], [in] unsigned long, [out] double* total);
}
`
	ifaces := ScanIDL(src)
	require.Len(t, ifaces, 1)
	require.Len(t, ifaces[0].Operations, 1)
	assert.Equal(t, []IDLParam{
		{Name: "label", Type: "wchar_t*", Dir: "in"},
		{Name: "samples", Type: "long[]", Dir: "in"},
		{Name: "arg2", Type: "unsigned long", Dir: "in"},
		{Name: "total", Type: "double*", Dir: "out"},
	}, ifaces[0].Operations[0].Params)

	inv := idlInvocable("meter.idl", ifaces[0], ifaces[0].Operations[0])
	require.Len(t, inv.Parameters, 3)
	assert.Equal(t, textscan.TypeString, inv.Parameters[0].Type)
	assert.Equal(t, textscan.TypeArray, inv.Parameters[1].Type)
	assert.Equal(t, textscan.TypeInteger, inv.Parameters[2].Type)
}
