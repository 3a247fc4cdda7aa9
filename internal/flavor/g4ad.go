package flavor

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

const (
	g4adFamily = "g4ad"

	// AMD Radeon Pro drivers for g4ad, published by AWS.
	amdDriverBucket = "ec2-amd-windows-drivers"
	amdDriverPrefix = "latest"
	amdDriverRegion = "us-east-1"
)

// G4AD is the AMD Radeon Pro V520 family. Its boot script installs the AMD
// display driver, NICE DCV server and display driver, Chocolatey, Steam and
// Edge, then writes the OK sentinel file.
type G4AD struct{}

var (
	_ Flavor       = G4AD{}
	_ DriverSource = G4AD{}
)

func (G4AD) Name() string { return g4adFamily }

func (G4AD) InstanceType(size string) string {
	return g4adFamily + "." + strings.ToLower(size)
}

func (G4AD) DriverBundle() DriverBundle {
	return DriverBundle{Bucket: amdDriverBucket, Prefix: amdDriverPrefix, Region: amdDriverRegion}
}

var g4adUserData = template.Must(template.New("g4ad").Parse(g4adUserDataTemplate))

func (g G4AD) UserData(p UserDataParams) (string, error) {
	var buf bytes.Buffer
	if err := g4adUserData.Execute(&buf, map[string]any{
		"DisplayDriverURL": p.DCVDisplayDriverURL,
		"ServerURL":        p.DCVServerURL,
		"Driver":           g.DriverBundle(),
	}); err != nil {
		return "", fmt.Errorf("render g4ad user data: %w", err)
	}
	return buf.String(), nil
}

// The driver package path inside the archive is pinned to the 21.04 Retail
// release. A newer archive under "latest" will break the pnputil step.
const g4adUserDataTemplate = `<powershell>
$NiceDCVDisplayDrivers = "{{ .DisplayDriverURL }}"
$NiceDCVServer = "{{ .ServerURL }}"
$SteamInstallation = "https://cdn.cloudflare.steamstatic.com/client/installer/SteamSetup.exe"
$MicrosoftEdgeInstallation = "https://go.microsoft.com/fwlink/?linkid=2108834&Channel=Stable&language=en"
$InstallationFilesFolder = "$home\Desktop\InstallationFiles"
$Bucket = "{{ .Driver.Bucket }}"
$KeyPrefix = "{{ .Driver.Prefix }}"
$Objects = Get-S3Object -BucketName $Bucket -KeyPrefix $KeyPrefix -Region {{ .Driver.Region }}
foreach ($Object in $Objects) {
    $LocalFileName = $Object.Key
    if ($LocalFileName -ne '' -and $Object.Size -ne 0) {
        $LocalFilePath = Join-Path $InstallationFilesFolder $LocalFileName
        Copy-S3Object -BucketName $Bucket -Key $Object.Key -LocalFile $LocalFilePath -Region {{ .Driver.Region }}
        Expand-Archive $LocalFilePath -DestinationPath $InstallationFilesFolder\1_AMD_driver
    }
}
pnputil /add-driver $home\Desktop\InstallationFiles\1_AMD_Driver\210414a-365562C-Retail_End_User.2\packages\Drivers\Display\WT6A_INF/*.inf /install
Invoke-WebRequest -Uri $NiceDCVServer -OutFile $InstallationFilesFolder\2_NICEDCV-Server.msi
Invoke-WebRequest -Uri $NiceDCVDisplayDrivers -OutFile $InstallationFilesFolder\3_NICEDCV-DisplayDriver.msi
Remove-Item $InstallationFilesFolder\latest -Recurse
Set-ExecutionPolicy Bypass -Scope Process -Force; [System.Net.ServicePointManager]::SecurityProtocol = [System.Net.ServicePointManager]::SecurityProtocol -bor 3072; iex ((New-Object System.Net.WebClient).DownloadString('https://community.chocolatey.org/install.ps1'))
choco feature enable -n=allowGlobalConfirmation
choco install steam-rom-manager
choco install steam-client --ignore-checksums
choco install microsoft-edge
Start-Process msiexec.exe -Wait -ArgumentList '/I C:\Users\Administrator\Desktop\InstallationFiles\2_NICEDCV-Server.msi /QN /L* "C:\msilog.log"'
Start-Process msiexec.exe -Wait -ArgumentList '/I C:\Users\Administrator\Desktop\InstallationFiles\3_NICEDCV-DisplayDriver.msi /QN /L* "C:\msilog.log"'
'' >> $InstallationFilesFolder\OK
</powershell>`
