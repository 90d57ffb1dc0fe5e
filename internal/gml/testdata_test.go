package gml

// parcelGML mirrors the shape of a cadastre INSPIRE GetParcel answer.
const parcelGML = `<?xml version="1.0" encoding="UTF-8"?>
<FeatureCollection xmlns="http://www.opengis.net/wfs/2.0" xmlns:gml="http://www.opengis.net/gml/3.2"
  xmlns:cp="http://inspire.ec.europa.eu/schemas/cp/4.0" numberMatched="1" numberReturned="1">
 <member>
  <cp:CadastralParcel gml:id="ES.SDGC.CP.9872023VH5797S">
   <cp:areaValue uom="m2">10000</cp:areaValue>
   <cp:geometry>
    <gml:MultiSurface gml:id="MultiSurface_ES.SDGC.CP.9872023VH5797S" srsName="http://www.opengis.net/def/crs/EPSG/0/25830">
     <gml:surfaceMember>
      <gml:Surface gml:id="Surface_1" srsName="http://www.opengis.net/def/crs/EPSG/0/25830">
       <gml:patches>
        <gml:PolygonPatch>
         <gml:exterior>
          <gml:LinearRing>
           <gml:posList srsDimension="2" count="5">440000 4474000 440100 4474000 440100 4474100 440000 4474100 440000 4474000</gml:posList>
          </gml:LinearRing>
         </gml:exterior>
        </gml:PolygonPatch>
       </gml:patches>
      </gml:Surface>
     </gml:surfaceMember>
    </gml:MultiSurface>
   </cp:geometry>
   <cp:nationalCadastralReference>9872023VH5797S</cp:nationalCadastralReference>
   <cp:referencePoint>
    <gml:Point gml:id="ReferencePoint_1" srsName="http://www.opengis.net/def/crs/EPSG/0/25830">
     <gml:pos>440050 4474050</gml:pos>
    </gml:Point>
   </cp:referencePoint>
  </cp:CadastralParcel>
 </member>
</FeatureCollection>`

// layerGML is a two-feature GML 3 answer in lat/lon axis order.
const layerGML = `<?xml version="1.0" encoding="ISO-8859-1"?>
<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" xmlns:gml="http://www.opengis.net/gml/3.2" xmlns:ms="http://example.org/ms">
 <wfs:member>
  <ms:espacios gml:id="e.1">
   <ms:nombre>Sierra de Guadarrama</ms:nombre>
   <ms:geom>
    <gml:Polygon srsName="urn:ogc:def:crs:EPSG::4326">
     <gml:exterior><gml:LinearRing><gml:posList>40 -4 40 -3 41 -3 41 -4</gml:posList></gml:LinearRing></gml:exterior>
     <gml:interior><gml:LinearRing><gml:posList>40.2 -3.8 40.2 -3.6 40.4 -3.6 40.2 -3.8</gml:posList></gml:LinearRing></gml:interior>
    </gml:Polygon>
   </ms:geom>
  </ms:espacios>
 </wfs:member>
 <wfs:member>
  <ms:espacios gml:id="e.2">
   <ms:nombre>Ribera</ms:nombre>
   <ms:geom>
    <gml:LineString srsName="urn:ogc:def:crs:EPSG::4326"><gml:posList>40 -4 41 -3</gml:posList></gml:LineString>
   </ms:geom>
  </ms:espacios>
 </wfs:member>
</wfs:FeatureCollection>`

// gml2 uses featureMember and coordinates tuples.
const gml2 = `<ogr:FeatureCollection xmlns:ogr="http://ogr.maptools.org/" xmlns:gml="http://www.opengis.net/gml">
 <gml:boundedBy><gml:Box><gml:coordinates>0,0 10,10</gml:coordinates></gml:Box></gml:boundedBy>
 <gml:featureMember>
  <ogr:montes fid="montes.0">
   <ogr:geometryProperty><gml:Polygon srsName="EPSG:25830"><gml:outerBoundaryIs><gml:LinearRing><gml:coordinates>0,0 10,0 10,10 0,10 0,0</gml:coordinates></gml:LinearRing></gml:outerBoundaryIs></gml:Polygon></ogr:geometryProperty>
   <ogr:NAME>Monte 1</ogr:NAME>
  </ogr:montes>
 </gml:featureMember>
</ogr:FeatureCollection>`
