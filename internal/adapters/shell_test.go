package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// Test Plan for command-script adapters:
// - Shell: functions name their positionals from local assignments; ${1:-x} is optional;
//   "$@" adds a variadic args parameter; @param coverage establishes parameters;
//   a script without functions is itself the invocable, documented by its header
// - PowerShell: comment-based help, typed param block and [OutputType()] reach guaranteed;
//   inline parameter lists parse; private: functions skipped; Mandatory and switch handling
// - Batch: labels become functions; %~1 named by set; REM @param coverage
// - VBScript: typed Function is fully described; Sub establishes no return; private and
//   class lifecycle procedures skipped; line continuations join

const shellSource = `#!/usr/bin/env bash
# Deploys the app.

# Copies a release to a host.
# @param host target host
# @param version release to copy
# @return status line
deploy() {
  local host=$1
  local version="${2:-latest}"
  echo "$host $version"
}

_private() { :; }

function notify {
  for arg in "$@"; do echo "$arg"; done
}
`

func TestShellAdapter_Functions(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "deploy.sh", shellSource)
	invs := extractOne(t, NewShellAdapter(Deps{}), path)
	assert.Equal(t, []string{"deploy", "notify"}, names(invs))

	deploy := invs[0]
	assert.Equal(t, confidence.Guaranteed, deploy.Confidence.Tier)
	assert.Equal(t, "Copies a release to a host.", deploy.Documentation)
	require.Len(t, deploy.Parameters, 2)
	assert.Equal(t, catalog.Parameter{Name: "host", Type: textscan.TypeString, NativeType: "string", Required: true, Description: "target host"}, deploy.Parameters[0])
	assert.Equal(t, "version", deploy.Parameters[1].Name)
	assert.False(t, deploy.Parameters[1].Required)
	assert.Equal(t, 8, deploy.Origin.Line)

	exec := deploy.Execution.(catalog.ProcessInvoke)
	assert.Equal(t, "bash", exec.Interpreter)
	assert.Equal(t, "deploy", exec.Function)

	notify := invs[1]
	require.Len(t, notify.Parameters, 1)
	assert.Equal(t, "args", notify.Parameters[0].Name)
	assert.Equal(t, textscan.TypeArray, notify.Parameters[0].Type)
	assert.Equal(t, confidence.Low, notify.Confidence.Tier)
}

func TestShellAdapter_WholeScript(t *testing.T) {
	t.Parallel()

	src := `#!/bin/sh
# Rotates the logs.
# @param 1 log directory
mv "$1"/app.log "$1"/app.log.1
`
	path := writeArtifact(t, t.TempDir(), "rotate.sh", src)
	invs := extractOne(t, NewShellAdapter(Deps{}), path)
	require.Len(t, invs, 1)

	script := invs[0]
	assert.Equal(t, "rotate", script.Name)
	assert.Equal(t, "Rotates the logs.", script.Documentation)
	assert.Equal(t, []string{"arg1"}, paramNames(script.Parameters))
	assert.Equal(t, "log directory", script.Parameters[0].Description)
	assert.Equal(t, confidence.High, script.Confidence.Tier)
	assert.Empty(t, script.Execution.(catalog.ProcessInvoke).Function)
}

const powerShellSource = `<#
.SYNOPSIS
Gets a user record.
.PARAMETER Name
The account name.
.PARAMETER IncludeGroups
Also load group membership.
#>
function Get-UserRecord {
    [CmdletBinding()]
    [OutputType([PSCustomObject])]
    param(
        [Parameter(Mandatory = $true)]
        [string]$Name,
        [switch]$IncludeGroups
    )
    Write-Output $Name
}

function Set-Flag([string]$Flag, [int]$Level = 1) {
}

function private:Hidden { }

function Invoke-Loose {
    param($Anything)
}
`

func TestPowerShellAdapter(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "users.ps1", powerShellSource)
	invs := extractOne(t, NewPowerShellAdapter(Deps{}), path)
	assert.Equal(t, []string{"Get-UserRecord", "Set-Flag", "Invoke-Loose"}, names(invs))
	got := indexByName(invs)

	get := got["Get-UserRecord"]
	assert.Equal(t, confidence.Guaranteed, get.Confidence.Tier)
	assert.Equal(t, "Gets a user record.", get.Documentation)
	require.Len(t, get.Parameters, 2)
	assert.Equal(t, catalog.Parameter{Name: "Name", Type: textscan.TypeString, NativeType: "string", Required: true, Description: "The account name."}, get.Parameters[0])
	assert.Equal(t, textscan.TypeBoolean, get.Parameters[1].Type)
	assert.False(t, get.Parameters[1].Required)
	require.NotNil(t, get.Return)
	assert.Equal(t, textscan.TypeObject, get.Return.Type)
	assert.Equal(t, "named", get.Execution.(catalog.ProcessInvoke).ArgStyle)

	set := got["Set-Flag"]
	assert.Equal(t, []string{"Flag", "Level"}, paramNames(set.Parameters))
	assert.False(t, set.Parameters[0].Required)
	assert.Equal(t, confidence.Medium, set.Confidence.Tier)

	loose := got["Invoke-Loose"]
	assert.Equal(t, textscan.TypeAny, loose.Parameters[0].Type)
	assert.Equal(t, confidence.Low, loose.Confidence.Tier)
}

func TestPowerShellAdapter_ScriptWithoutFunctions(t *testing.T) {
	t.Parallel()

	src := `#Requires -Version 5
<#
.SYNOPSIS
Backs up a folder.
.OUTPUTS
System.String. The archive path.
#>
param([Parameter(Mandatory)][string]$Source)
Compress-Archive $Source out.zip
`
	path := writeArtifact(t, t.TempDir(), "backup.ps1", src)
	invs := extractOne(t, NewPowerShellAdapter(Deps{}), path)
	require.Len(t, invs, 1)

	script := invs[0]
	assert.Equal(t, "backup", script.Name)
	assert.Equal(t, "Backs up a folder.", script.Documentation)
	assert.Equal(t, confidence.Guaranteed, script.Confidence.Tier)
	assert.True(t, script.Parameters[0].Required)
	assert.Equal(t, "System.String", script.Return.Native)
	assert.Empty(t, script.Execution.(catalog.ProcessInvoke).Function)
}

const batchSource = "@echo off\r\n" +
	"rem Build helpers.\r\n" +
	"\r\n" +
	"REM Packages a build.\r\n" +
	"REM @param target output folder\r\n" +
	":package\r\n" +
	"set \"target=%~1\"\r\n" +
	"echo %target%\r\n" +
	"goto :eof\r\n" +
	"\r\n" +
	":clean\r\n" +
	"del /q %*\r\n" +
	"goto :eof\r\n"

func TestBatchAdapter(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "build.cmd", batchSource)
	invs := extractOne(t, NewBatchAdapter(Deps{}), path)
	assert.Equal(t, []string{"package", "clean"}, names(invs))

	pkg := invs[0]
	assert.Equal(t, "Packages a build.", pkg.Documentation)
	assert.Equal(t, []string{"target"}, paramNames(pkg.Parameters))
	assert.Equal(t, "output folder", pkg.Parameters[0].Description)
	assert.Equal(t, confidence.High, pkg.Confidence.Tier)
	assert.Equal(t, 6, pkg.Origin.Line)
	assert.Equal(t, ":package", pkg.Execution.(catalog.ProcessInvoke).Function)

	clean := invs[1]
	assert.Equal(t, textscan.TypeArray, clean.Parameters[0].Type)
	assert.Equal(t, confidence.Low, clean.Confidence.Tier)
}

func TestBatchAdapter_WholeScript(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "hello.bat", ":: Says hello.\necho hello %1 %2\n")
	invs := extractOne(t, NewBatchAdapter(Deps{}), path)
	require.Len(t, invs, 1)
	assert.Equal(t, "hello", invs[0].Name)
	assert.Equal(t, "Says hello.", invs[0].Documentation)
	assert.Equal(t, []string{"arg1", "arg2"}, paramNames(invs[0].Parameters))
	assert.Equal(t, confidence.Medium, invs[0].Confidence.Tier)
}

const vbSource = `' Adds two numbers.
' @param a first addend
Public Function Add(ByVal a As Integer, _
                    Optional b As Integer = 0) As Integer
    Add = a + b
End Function

' Logs a line.
Sub WriteLog(msg)
End Sub

Private Sub Hidden()
End Sub

Class Counter
    Private Sub Class_Initialize()
    End Sub

    Public Function Next(items()) ' advances
    End Function
End Class
`

func TestVBScriptAdapter(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "math.vbs", vbSource)
	invs := extractOne(t, NewVBScriptAdapter(Deps{}), path)
	assert.Equal(t, []string{"Add", "WriteLog", "Counter.Next"}, names(invs))
	got := indexByName(invs)

	add := got["Add"]
	assert.Equal(t, confidence.Guaranteed, add.Confidence.Tier)
	assert.Equal(t, 3, add.Origin.Line)
	require.Len(t, add.Parameters, 2)
	assert.Equal(t, "first addend", add.Parameters[0].Description)
	assert.False(t, add.Parameters[1].Required)
	assert.Equal(t, textscan.TypeInteger, add.Return.Type)

	log := got["WriteLog"]
	assert.Nil(t, log.Return)
	assert.Equal(t, confidence.High, log.Confidence.Tier)

	next := got["Counter.Next"]
	require.Len(t, next.Parameters, 1)
	assert.Equal(t, "Variant()", next.Parameters[0].NativeType)
	assert.Equal(t, confidence.Medium, next.Confidence.Tier)
}
